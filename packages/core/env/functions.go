package env

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/rand"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Func is a function callable from a {{name(args)}} placeholder
type Func func(args []string) (any, error)

// Functions is the registry of placeholder functions
type Functions struct {
	funcs map[string]Func
}

// NewFunctions creates a registry with the default functions
func NewFunctions() *Functions {
	f := &Functions{
		funcs: make(map[string]Func),
	}
	f.registerDefaults()
	return f
}

func (f *Functions) registerDefaults() {
	f.funcs["now"] = funcNow
	f.funcs["timestamp"] = funcTimestamp
	f.funcs["timestampMs"] = funcTimestampMs
	f.funcs["uuid"] = funcUUID
	f.funcs["random"] = funcRandom
	f.funcs["randomString"] = funcRandomString
	f.funcs["randomEmail"] = funcRandomEmail
	f.funcs["base64"] = funcBase64
	f.funcs["base64Decode"] = funcBase64Decode
	f.funcs["md5"] = funcMD5
	f.funcs["sha256"] = funcSHA256
	f.funcs["encodeURIComponent"] = funcURLEncode
	f.funcs["decodeURIComponent"] = funcURLDecode
	f.funcs["date"] = funcDate
	f.funcs["lower"] = funcLower
	f.funcs["upper"] = funcUpper
}

// Register adds or replaces a function
func (f *Functions) Register(name string, fn Func) {
	f.funcs[name] = fn
}

var funcCallPattern = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// Call evaluates expr if it is a call to a registered function. The boolean
// reports whether expr named a known function.
func (f *Functions) Call(expr string) (any, bool, error) {
	matches := funcCallPattern.FindStringSubmatch(expr)
	if matches == nil {
		return nil, false, nil
	}

	fn, ok := f.funcs[matches[1]]
	if !ok {
		return nil, false, nil
	}

	var args []string
	if matches[2] != "" {
		args = parseArgs(matches[2])
	}

	v, err := fn(args)
	return v, true, err
}

func parseArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case !inQuote && (ch == '"' || ch == '\''):
			inQuote = true
			quoteChar = ch
		case inQuote && ch == quoteChar:
			inQuote = false
			quoteChar = 0
		case !inQuote && ch == ',':
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}

	if current.Len() > 0 {
		args = append(args, strings.TrimSpace(current.String()))
	}

	return args
}

func firstArg(args []string) string {
	if len(args) < 1 {
		return ""
	}
	return args[0]
}

func intArg(args []string, i, def int, fn string) (int, error) {
	if len(args) <= i {
		return def, nil
	}
	v, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("%s() argument %q is not a valid integer", fn, args[i])
	}
	return v, nil
}

func funcNow(_ []string) (any, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}

func funcTimestamp(_ []string) (any, error) {
	return time.Now().Unix(), nil
}

func funcTimestampMs(_ []string) (any, error) {
	return time.Now().UnixMilli(), nil
}

func funcUUID(_ []string) (any, error) {
	return uuid.New().String(), nil
}

func funcRandom(args []string) (any, error) {
	min, err := intArg(args, 0, 0, "random")
	if err != nil {
		return nil, err
	}
	max, err := intArg(args, 1, 100, "random")
	if err != nil {
		return nil, err
	}
	if max < min {
		return nil, fmt.Errorf("random() max %d is lower than min %d", max, min)
	}
	return rand.Intn(max-min+1) + min, nil
}

func funcRandomString(args []string) (any, error) {
	length, err := intArg(args, 0, 16, "randomString")
	if err != nil {
		return nil, err
	}
	return randomString(length, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"), nil
}

func funcRandomEmail(_ []string) (any, error) {
	user := randomString(8, "abcdefghijklmnopqrstuvwxyz")
	domain := randomString(6, "abcdefghijklmnopqrstuvwxyz")
	return fmt.Sprintf("%s@%s.com", user, domain), nil
}

func funcBase64(args []string) (any, error) {
	return base64.StdEncoding.EncodeToString([]byte(firstArg(args))), nil
}

func funcBase64Decode(args []string) (any, error) {
	decoded, err := base64.StdEncoding.DecodeString(firstArg(args))
	if err != nil {
		return nil, fmt.Errorf("base64Decode(): %w", err)
	}
	return string(decoded), nil
}

func funcMD5(args []string) (any, error) {
	hash := md5.Sum([]byte(firstArg(args)))
	return hex.EncodeToString(hash[:]), nil
}

func funcSHA256(args []string) (any, error) {
	hash := sha256.Sum256([]byte(firstArg(args)))
	return hex.EncodeToString(hash[:]), nil
}

func funcURLEncode(args []string) (any, error) {
	return url.QueryEscape(firstArg(args)), nil
}

func funcURLDecode(args []string) (any, error) {
	decoded, err := url.QueryUnescape(firstArg(args))
	if err != nil {
		return firstArg(args), nil
	}
	return decoded, nil
}

func funcDate(args []string) (any, error) {
	format := "2006-01-02"
	if len(args) >= 1 {
		format = args[0]
	}
	return time.Now().UTC().Format(format), nil
}

func funcLower(args []string) (any, error) {
	return strings.ToLower(firstArg(args)), nil
}

func funcUpper(args []string) (any, error) {
	return strings.ToUpper(firstArg(args)), nil
}

func randomString(length int, charset string) string {
	result := make([]byte, length)
	for i := 0; i < length; i++ {
		result[i] = charset[rand.Intn(len(charset))]
	}
	return string(result)
}
