package libchat

import (
	"context"
	"net/url"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnParamsAttachToken(t *testing.T) {
	endpoint, err := url.Parse("wss://chat.example.com/ws")
	require.NoError(t, err)

	calls := 0
	repo := NewConnParamsRepo(NopLogger(), *endpoint, func(ctx context.Context) (string, error) {
		calls++
		return "tok-abc", nil
	})

	params, err := repo.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-abc", params.URL.Query().Get("token"))
	assert.Equal(t, "chat.example.com", params.URL.Host)
	assert.Equal(t, 1, calls)

	// Every attempt mints a fresh token: nothing may be cached.
	_, err = repo.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestConnParamsCredentialError(t *testing.T) {
	endpoint, err := url.Parse("wss://chat.example.com/ws")
	require.NoError(t, err)

	repo := NewConnParamsRepo(NopLogger(), *endpoint, func(ctx context.Context) (string, error) {
		return "", errors.New("401 unauthorized")
	})

	_, err = repo.Get(context.Background())
	require.Error(t, err)

	var credErr ErrCredential
	assert.ErrorAs(t, err, &credErr)
}
