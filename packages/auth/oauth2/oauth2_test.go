package oauth2

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "client_credentials":
			user, pass, ok := r.BasicAuth()
			if !ok || user != "id" || pass != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"bad credentials"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"cc-token","token_type":"bearer","expires_in":3600}`))
		case "password":
			if r.PostForm.Get("username") != "alice" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"pw-token","token_type":"Bearer"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
}

func TestProvider_ClientCredentials(t *testing.T) {
	var hits int32
	server := tokenServer(t, &hits)
	defer server.Close()

	p := NewProvider(&Config{
		TokenURL:     server.URL,
		ClientID:     "id",
		ClientSecret: "secret",
		GrantType:    ClientCredentials,
	})

	token, err := p.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cc-token", token.AccessToken)
	assert.Equal(t, "Bearer", token.Type())
	assert.False(t, token.IsExpired())

	_, err = p.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "second call should be served from the cache")
}

func TestProvider_PasswordGrant(t *testing.T) {
	var hits int32
	server := tokenServer(t, &hits)
	defer server.Close()

	p := NewProvider(&Config{
		TokenURL:  server.URL,
		Username:  "alice",
		Password:  "pw",
		GrantType: Password,
	})

	token, err := p.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pw-token", token.AccessToken)
}

func TestProvider_ErrorResponse(t *testing.T) {
	var hits int32
	server := tokenServer(t, &hits)
	defer server.Close()

	p := NewProvider(&Config{
		TokenURL:     server.URL,
		ClientID:     "id",
		ClientSecret: "wrong",
	})

	_, err := p.GetToken(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_client")
}

func TestProvider_UnsupportedGrant(t *testing.T) {
	p := NewProvider(&Config{TokenURL: "http://localhost", GrantType: "implicit"})
	_, err := p.GetToken(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported OAuth2 grant type")
}

func TestProvider_SharedCache(t *testing.T) {
	var hits int32
	server := tokenServer(t, &hits)
	defer server.Close()

	cache := NewTokenCache()
	cfg := &Config{TokenURL: server.URL, ClientID: "id", ClientSecret: "secret"}

	_, err := NewProvider(cfg, WithCache(cache)).GetToken(context.Background())
	require.NoError(t, err)
	_, err = NewProvider(cfg, WithCache(cache)).GetToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestToken_IsExpired(t *testing.T) {
	assert.False(t, (&Token{}).IsExpired())
	assert.True(t, (&Token{ExpiresAt: time.Now().Add(10 * time.Second)}).IsExpired())
	assert.False(t, (&Token{ExpiresAt: time.Now().Add(time.Hour)}).IsExpired())
}

func TestTokenCache(t *testing.T) {
	c := NewTokenCache()
	c.Set("a", &Token{AccessToken: "x"})
	assert.Equal(t, "x", c.Get("a").AccessToken)

	c.Set("old", &Token{AccessToken: "y", ExpiresAt: time.Now().Add(-time.Minute)})
	assert.Nil(t, c.Get("old"))
	assert.Equal(t, 1, c.Len())
}

func TestTokenCache_GetOrFetchOnce(t *testing.T) {
	c := NewTokenCache()
	var fetches int32
	fetch := func() (*Token, error) {
		atomic.AddInt32(&fetches, 1)
		time.Sleep(20 * time.Millisecond)
		return &Token{AccessToken: "shared"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := c.GetOrFetch("k", fetch)
			assert.NoError(t, err)
			assert.Equal(t, "shared", token.AccessToken)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))
}

func TestTokenCache_FetchErrorNotCached(t *testing.T) {
	c := NewTokenCache()
	_, err := c.GetOrFetch("k", func() (*Token, error) { return nil, errors.New("denied") })
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}
