package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDotEnv(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Context
	}{
		{"plain", "TOKEN=abc\nHOST=api.local", Context{"TOKEN": "abc", "HOST": "api.local"}},
		{"export prefix", "export TOKEN=abc", Context{"TOKEN": "abc"}},
		{"comments and blanks", "# creds\n\nTOKEN=abc\n   # indented", Context{"TOKEN": "abc"}},
		{"inline comment", "TOKEN=abc # rotated weekly", Context{"TOKEN": "abc"}},
		{"hash inside value", "COLOR=#fff", Context{"COLOR": "#fff"}},
		{"single quotes are literal", `MSG='a\nb # c'`, Context{"MSG": `a\nb # c`}},
		{"double quote escapes", `MSG="line1\nline2 \"q\""`, Context{"MSG": "line1\nline2 \"q\""}},
		{"empty value", "EMPTY=", Context{"EMPTY": ""}},
		{"equals in value", "DSN=user=a;pass=b", Context{"DSN": "user=a;pass=b"}},
		{"lines without key are skipped", "=x\nnovalue\nK=v", Context{"K": "v"}},
		{"later wins", "K=1\nK=2", Context{"K": "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadDotEnv(writeEnvFile(t, tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDotEnv_UnterminatedQuote(t *testing.T) {
	_, err := LoadDotEnv(writeEnvFile(t, "OK=1\nBAD=\"open"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":2: unterminated double quote")
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	_, err := LoadDotEnv(filepath.Join(t.TempDir(), "nope.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot open env file")
}

func TestLoadDotEnv_NotExported(t *testing.T) {
	_, err := LoadDotEnv(writeEnvFile(t, "HITRUN_DOTENV_PROBE=1"))
	require.NoError(t, err)
	_, set := os.LookupEnv("HITRUN_DOTENV_PROBE")
	assert.False(t, set)
}
