package libchat

import (
	"context"
	"net/http"
	"net/url"
)

type (
	// TokenGetter obtains a fresh, short-lived session token. It is invoked
	// once per connection attempt; tokens are single-use and never cached.
	TokenGetter func(ctx context.Context) (string, error)

	// ConnParams is everything the transport needs to dial: the endpoint
	// with the session token attached, plus extra headers.
	ConnParams struct {
		URL    url.URL
		Header http.Header
	}

	// ConnParamsRepo builds fresh connection parameters for each attempt.
	ConnParamsRepo struct {
		logger   Logger
		endpoint url.URL
		tokens   TokenGetter
	}
)

func (r ConnParamsRepo) Get(ctx context.Context) (params ConnParams, err error) {
	token, err := r.tokens(ctx)
	if err != nil {
		r.logger.Errorf("cannot fetch session token: %s", err)
		return params, WrapErrCredential(err)
	}

	u := r.endpoint
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return ConnParams{URL: u, Header: http.Header{}}, nil
}

func NewConnParamsRepo(
	logger Logger,
	endpoint url.URL,
	tokens TokenGetter,
) ConnParamsRepo {
	return ConnParamsRepo{logger: logger, endpoint: endpoint, tokens: tokens}
}
