package http

import (
	"context"
	"fmt"
	"net/http"
	neturl "net/url"
	"strings"

	"github.com/abdul-hamid-achik/hitrun/packages/auth/oauth2"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

// fetchToken returns the bearer credential for an oauth2 authorization.
// A pre-issued access token is used as is; otherwise the token endpoint is
// asked once and the result is cached on the client.
func (c *Client) fetchToken(ctx context.Context, hc *http.Client, cfg model.AuthConfig) (string, error) {
	tokenType := cfg.TokenType
	if cfg.AccessToken != "" {
		return formatToken(tokenType, cfg.AccessToken), nil
	}

	provider := oauth2.NewProvider(&oauth2.Config{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       strings.Fields(cfg.Scope),
		Username:     cfg.Username,
		Password:     cfg.Password,
		GrantType:    oauth2.GrantType(cfg.GrantType),
	}, oauth2.WithHTTPClient(hc), oauth2.WithCache(c.tokens))

	token, err := provider.GetToken(ctx)
	if err != nil {
		return "", err
	}
	if tokenType == "" {
		tokenType = token.Type()
	}
	return formatToken(tokenType, token.AccessToken), nil
}

func formatToken(tokenType, token string) string {
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return tokenType + " " + token
}

// deliverToken places the credential into a header (the default) or into
// the query string, returning the possibly rewritten target URL.
func deliverToken(target string, headers http.Header, cfg model.AuthConfig, credential string) (string, error) {
	switch strings.ToLower(cfg.DeliveryMethod) {
	case "", "header":
		headers.Set(firstNonEmpty(cfg.DeliveryName, "Authorization"), credential)
		return target, nil
	case "query":
		u, err := neturl.Parse(target)
		if err != nil {
			return "", fmt.Errorf("invalid URL: %w", err)
		}
		token := credential
		if i := strings.IndexByte(credential, ' '); i >= 0 {
			token = credential[i+1:]
		}
		q := u.Query()
		q.Set(firstNonEmpty(cfg.DeliveryName, "access_token"), token)
		u.RawQuery = q.Encode()
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported oauth2 delivery method: %s", cfg.DeliveryMethod)
	}
}
