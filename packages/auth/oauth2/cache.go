package oauth2

import (
	"sync"
)

// TokenCache holds tokens by provider key. Concurrent requests for the
// same key wait for one fetch instead of each asking the token endpoint.
type TokenCache struct {
	mu      sync.Mutex
	tokens  map[string]*Token
	pending map[string]*sync.Mutex
}

// NewTokenCache creates an empty token cache
func NewTokenCache() *TokenCache {
	return &TokenCache{
		tokens:  make(map[string]*Token),
		pending: make(map[string]*sync.Mutex),
	}
}

// Get returns the token for key, or nil if it is missing or expired
func (c *TokenCache) Get(key string) *Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	token := c.tokens[key]
	if token != nil && token.IsExpired() {
		delete(c.tokens, key)
		return nil
	}
	return token
}

func (c *TokenCache) Set(key string, token *Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[key] = token
}

// Len counts the cached tokens, expired ones included
func (c *TokenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tokens)
}

// GetOrFetch returns the cached token for key or stores the result of
// fetch. Only one fetch per key runs at a time.
func (c *TokenCache) GetOrFetch(key string, fetch func() (*Token, error)) (*Token, error) {
	if token := c.Get(key); token != nil {
		return token, nil
	}

	c.mu.Lock()
	lock, ok := c.pending[key]
	if !ok {
		lock = &sync.Mutex{}
		c.pending[key] = lock
	}
	c.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	// another caller may have fetched while we waited
	if token := c.Get(key); token != nil {
		return token, nil
	}
	token, err := fetch()
	if err != nil {
		return nil, err
	}
	c.Set(key, token)
	return token, nil
}
