package libchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const defaultRestTimeout = 30 * time.Second

// Room is one chat room as listed by the REST API.
type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Pagination describes one page of a history response.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}

// RestClient consumes the plain request/response endpoints next to the
// real-time transport: session token minting, room listing and paginated
// history.
type RestClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

type RestOption func(*RestClient)

func WithHTTPClient(client *http.Client) RestOption {
	return func(c *RestClient) { c.httpClient = client }
}

// WithAuthToken sets the long-lived bearer credential of the logged-in user.
func WithAuthToken(token string) RestOption {
	return func(c *RestClient) { c.authToken = token }
}

func NewRestClient(baseURL string, opts ...RestOption) *RestClient {
	c := &RestClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultRestTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAuthToken updates the bearer credential, e.g. after a login refresh.
func (c *RestClient) SetAuthToken(token string) {
	c.authToken = token
}

type apiResponse struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Token      string          `json:"token"`
	Rooms      []Room          `json:"rooms"`
	Messages   []Message       `json:"messages"`
	Pagination *Pagination     `json:"pagination"`
	Data       json.RawMessage `json:"data"`
}

func (c *RestClient) doRequest(
	ctx context.Context,
	method, path string,
	body any,
	query map[string]string,
) (*apiResponse, error) {
	var reader io.Reader
	if body != nil {
		bts, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal request body")
		}
		reader = bytes.NewReader(bts)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if len(query) > 0 {
		q := req.URL.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bts, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}

	var out apiResponse
	if err := json.Unmarshal(bts, &out); err != nil {
		return nil, errors.Wrapf(err, "decode %s %s response", method, path)
	}

	if resp.StatusCode >= http.StatusBadRequest || !out.Success {
		msg := out.Message
		if msg == "" {
			msg = resp.Status
		}
		return nil, errors.Errorf("%s %s: %s", method, path, msg)
	}

	return &out, nil
}

// FetchSessionToken mints a fresh single-use token for the real-time
// transport. Tokens are never reused, so the session calls this once per
// connection attempt.
func (c *RestClient) FetchSessionToken(ctx context.Context) (string, error) {
	out, err := c.doRequest(ctx, http.MethodPost, "/api/session-token", nil, nil)
	if err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errors.New("server returned no session token")
	}
	return out.Token, nil
}

// TokenGetter adapts the client into the getter the session consumes.
func (c *RestClient) TokenGetter() TokenGetter {
	return c.FetchSessionToken
}

// FetchRooms lists the rooms available to the user.
func (c *RestClient) FetchRooms(ctx context.Context) ([]Room, error) {
	out, err := c.doRequest(ctx, http.MethodGet, "/api/rooms", nil, nil)
	if err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

// FetchMessageHistory retrieves one page of a room's history. Entries are
// returned with status sent, ready for Session.AddHistory.
func (c *RestClient) FetchMessageHistory(
	ctx context.Context,
	roomID string,
	page, limit int,
) ([]Message, *Pagination, error) {
	out, err := c.doRequest(
		ctx,
		http.MethodGet,
		fmt.Sprintf("/api/rooms/%s/messages", roomID),
		nil,
		map[string]string{
			"page":  fmt.Sprintf("%d", page),
			"limit": fmt.Sprintf("%d", limit),
		},
	)
	if err != nil {
		return nil, nil, err
	}

	messages := out.Messages
	for i := range messages {
		messages[i].Status = StatusSent
	}
	return messages, out.Pagination, nil
}
