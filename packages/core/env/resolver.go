package env

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
)

// Innermost placeholders only, so {{base64({{user}})}} resolves inside out.
var variablePattern = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

const maxNesting = 8

// Context is the variable context of a run. It is shared by reference
// across the stages of one request and mutated by flows.
type Context map[string]string

// Clone returns a shallow copy of the context
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge copies other into c, overriding existing names
func (c Context) Merge(other map[string]string) {
	for k, v := range other {
		c[k] = v
	}
}

// WarnFunc is a function type for handling warnings
type WarnFunc func(format string, args ...any)

// Resolver evaluates {{placeholders}} against a Context. Placeholders may
// name a context variable, an OS environment variable ($NAME) or a function
// call (uuid(), base64(x), ...).
type Resolver struct {
	mu       sync.RWMutex
	funcs    *Functions
	warnFunc WarnFunc
}

func NewResolver() *Resolver {
	return &Resolver{
		funcs: NewFunctions(),
	}
}

// SetWarnFunc sets a function to be called when warnings occur (e.g., unresolved variables)
func (r *Resolver) SetWarnFunc(fn WarnFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnFunc = fn
}

// Register adds a placeholder function
func (r *Resolver) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs.Register(name, fn)
}

func (r *Resolver) warn(format string, args ...any) {
	r.mu.RLock()
	fn := r.warnFunc
	r.mu.RUnlock()
	if fn != nil {
		fn(format, args...)
	}
}

// EvaluateString replaces every placeholder in input. Unresolved placeholders
// are left in place.
func (r *Resolver) EvaluateString(input string, ctx Context) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	unresolved := make(map[string]bool)
	for i := 0; i < maxNesting; i++ {
		next := variablePattern.ReplaceAllStringFunc(input, func(match string) string {
			if unresolved[match] {
				return match
			}
			if v, ok := r.resolveExpr(strings.TrimSpace(match[2:len(match)-2]), ctx); ok {
				return v
			}
			unresolved[match] = true
			return match
		})
		if next == input {
			break
		}
		input = next
	}
	return input
}

func (r *Resolver) resolveExpr(expr string, ctx Context) (string, bool) {
	if strings.HasPrefix(expr, "$") {
		name := expr[1:]
		if val, ok := os.LookupEnv(name); ok {
			return val, true
		}
		r.warn("unresolved environment variable: $%s", name)
		return "", false
	}

	if val, ok := ctx[expr]; ok {
		return val, true
	}

	if strings.Contains(expr, "(") {
		r.mu.RLock()
		result, known, err := r.funcs.Call(expr)
		r.mu.RUnlock()
		if known && err == nil {
			return fmt.Sprintf("%v", result), true
		}
		if err != nil {
			r.warn("function call %s failed: %v", expr, err)
			return "", false
		}
		r.warn("unresolved function call: %s", expr)
		return "", false
	}

	r.warn("unresolved variable: %s", expr)
	return "", false
}

// Evaluate resolves placeholders recursively inside strings, slices and maps.
// Other values are returned unchanged.
func (r *Resolver) Evaluate(value any, ctx Context) any {
	switch v := value.(type) {
	case string:
		return r.EvaluateString(v, ctx)
	case []string:
		out := make([]string, len(v))
		for i, s := range v {
			out[i] = r.EvaluateString(s, ctx)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = r.Evaluate(item, ctx)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, s := range v {
			out[k] = r.EvaluateString(s, ctx)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = r.Evaluate(item, ctx)
		}
		return out
	default:
		return value
	}
}

// Unresolved returns the placeholders of input that cannot be resolved
func (r *Resolver) Unresolved(input string, ctx Context) []string {
	var names []string
	for _, m := range variablePattern.FindAllStringSubmatch(r.EvaluateString(input, ctx), -1) {
		names = append(names, strings.TrimSpace(m[1]))
	}
	return names
}
