package http

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/url"
	"strings"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

// digestChallenge is a parsed WWW-Authenticate: Digest header
type digestChallenge struct {
	Realm     string
	Nonce     string
	Opaque    string
	Qop       string
	Algorithm string
}

// parseChallenge reads the key=value pairs of a challenge. Quoted values may
// contain commas, as in qop="auth,auth-int".
func parseChallenge(header string) map[string]string {
	result := make(map[string]string)
	if i := strings.IndexByte(header, ' '); i >= 0 {
		header = header[i+1:]
	}

	var key, value strings.Builder
	inKey, inQuote := true, false
	flush := func() {
		k := strings.ToLower(strings.TrimSpace(key.String()))
		if k != "" {
			result[k] = strings.TrimSpace(value.String())
		}
		key.Reset()
		value.Reset()
		inKey = true
	}

	for i := 0; i < len(header); i++ {
		ch := header[i]
		switch {
		case inKey && ch == '=':
			inKey = false
		case inKey && ch == ',':
			flush()
		case inKey:
			key.WriteByte(ch)
		case ch == '"':
			inQuote = !inQuote
		case ch == ',' && !inQuote:
			flush()
		default:
			value.WriteByte(ch)
		}
	}
	flush()
	return result
}

func newDigestChallenge(header string) digestChallenge {
	params := parseChallenge(header)
	return digestChallenge{
		Realm:     params["realm"],
		Nonce:     params["nonce"],
		Opaque:    params["opaque"],
		Qop:       params["qop"],
		Algorithm: params["algorithm"],
	}
}

// digestAuthorization answers a challenge (RFC 7616). MD5 and SHA-256 are
// supported, including their -sess variants.
func digestAuthorization(method, target string, cfg model.AuthConfig, header string) (string, error) {
	ch := newDigestChallenge(header)

	var newHash func() hash.Hash
	algorithm := strings.ToUpper(ch.Algorithm)
	switch strings.TrimSuffix(algorithm, "-SESS") {
	case "", "MD5":
		newHash = md5.New
	case "SHA-256":
		newHash = sha256.New
	default:
		return "", fmt.Errorf("unsupported digest algorithm: %s", ch.Algorithm)
	}
	h := func(s string) string {
		d := newHash()
		d.Write([]byte(s))
		return hex.EncodeToString(d.Sum(nil))
	}

	uri := target
	if u, err := url.Parse(target); err == nil {
		uri = u.RequestURI()
	}

	cnonce, err := generateCnonce()
	if err != nil {
		return "", err
	}
	const nc = "00000001"

	ha1 := h(cfg.Username + ":" + ch.Realm + ":" + cfg.Password)
	if strings.HasSuffix(algorithm, "-SESS") {
		ha1 = h(ha1 + ":" + ch.Nonce + ":" + cnonce)
	}
	ha2 := h(method + ":" + uri)

	qop := ""
	for _, q := range strings.Split(ch.Qop, ",") {
		if strings.TrimSpace(q) == "auth" {
			qop = "auth"
		}
	}

	var response string
	if qop != "" {
		response = h(strings.Join([]string{ha1, ch.Nonce, nc, cnonce, qop, ha2}, ":"))
	} else {
		response = h(ha1 + ":" + ch.Nonce + ":" + ha2)
	}

	parts := []string{
		fmt.Sprintf(`username="%s"`, cfg.Username),
		fmt.Sprintf(`realm="%s"`, ch.Realm),
		fmt.Sprintf(`nonce="%s"`, ch.Nonce),
		fmt.Sprintf(`uri="%s"`, uri),
		fmt.Sprintf(`response="%s"`, response),
	}
	if ch.Algorithm != "" {
		parts = append(parts, "algorithm="+ch.Algorithm)
	}
	if qop != "" {
		parts = append(parts, "qop="+qop, "nc="+nc, fmt.Sprintf(`cnonce="%s"`, cnonce))
	}
	if ch.Opaque != "" {
		parts = append(parts, fmt.Sprintf(`opaque="%s"`, ch.Opaque))
	}

	return "Digest " + strings.Join(parts, ", "), nil
}

func generateCnonce() (string, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
