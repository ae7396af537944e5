package env

import (
	"os"
	"path/filepath"
	"strings"
)

// SystemVariables selects which OS environment variables seed a run's
// context. All takes every variable, Names a filtered subset. Values is an
// explicit map used in place of the OS environment, which is how a parent
// process hands its snapshot to workers.
type SystemVariables struct {
	All    bool              `json:"all,omitempty"`
	Names  []string          `json:"names,omitempty"`
	Values map[string]string `json:"values,omitempty"`
}

// Enabled reports whether any system variables are requested
func (s *SystemVariables) Enabled() bool {
	return s != nil && (s.All || len(s.Names) > 0 || len(s.Values) > 0)
}

// Snapshot returns the selected variables. Names may be glob patterns.
func (s *SystemVariables) Snapshot() Context {
	result := make(Context)
	if s == nil {
		return result
	}
	if s.Values != nil {
		for k, v := range s.Values {
			result[k] = v
		}
		return result
	}

	system := LoadSystemEnv("")
	if s.All {
		return system
	}
	for name, value := range system {
		for _, pattern := range s.Names {
			if name == pattern {
				result[name] = value
				break
			}
			if ok, _ := filepath.Match(pattern, name); ok {
				result[name] = value
				break
			}
		}
	}
	return result
}

// MergeContexts merges sources left to right, later ones overriding
func MergeContexts(sources ...map[string]string) Context {
	result := make(Context)
	for _, src := range sources {
		for k, v := range src {
			result[k] = v
		}
	}
	return result
}

// LoadSystemEnv returns the OS environment. A non-empty prefix keeps only
// variables starting with it and strips the prefix from their names.
func LoadSystemEnv(prefix string) Context {
	result := make(Context)
	for _, e := range os.Environ() {
		key, value, ok := strings.Cut(e, "=")
		if !ok || key == "" {
			continue
		}
		if prefix == "" {
			result[key] = value
		} else if len(key) > len(prefix) && strings.HasPrefix(key, prefix) {
			result[key[len(prefix):]] = value
		}
	}
	return result
}
