package config

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// LookupFunc resolves a single environment variable. It has the same
// contract as os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// OSLookup reads the process environment.
func OSLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapLookup resolves variables from a fixed map. Useful for tests and for
// values read from a .env file.
func MapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// ChainLookup consults each LookupFunc in order and returns the first hit
// that holds a non-blank value.
func ChainLookup(fns ...LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if v, ok := fn(key); ok && cleanValue(v) != "" {
				return v, true
			}
		}
		return "", false
	}
}

// keyAliases maps a canonical variable to the legacy names still honoured.
var keyAliases = map[string][]string{
	"OPENAI_API_KEY": {"OPENAI_KEY"},
	"GOOGLE_API_KEY": {"GEMINI_API_KEY"},
}

var inlineComment = regexp.MustCompile(`\s+#.*$`)

// cleanValue trims whitespace and strips a trailing " # comment".
func cleanValue(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	return strings.TrimSpace(inlineComment.ReplaceAllString(v, ""))
}

// envReader reads typed values and remembers the first parse failure so the
// loader can read every field and report one error at the end.
type envReader struct {
	lookup LookupFunc
	err    error
}

func (r *envReader) raw(key string) (string, bool) {
	names := append([]string{key}, keyAliases[key]...)
	for _, name := range names {
		v, ok := r.lookup(name)
		if !ok {
			continue
		}
		if cleaned := cleanValue(v); cleaned != "" {
			return cleaned, true
		}
	}
	return "", false
}

func (r *envReader) fail(key, msg string, cause error) {
	if r.err == nil {
		r.err = newError(key, msg, cause)
	}
}

func (r *envReader) String(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *envReader) Bool(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	r.fail(key, fmt.Sprintf("environment variable %s must be a boolean value, got %q", key, v), nil)
	return def
}

func (r *envReader) Int(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, fmt.Sprintf("environment variable %s must be an integer, got %q", key, v), err)
		return def
	}
	return n
}

// Seconds reads a duration given in (possibly fractional) seconds. Go
// duration strings such as "500ms" are accepted too.
func (r *envReader) Seconds(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, fmt.Sprintf("environment variable %s must be a number of seconds, got %q", key, v), err)
		return def
	}
	return d
}

func (r *envReader) OptionalFloat(key string, def *float64) *float64 {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, fmt.Sprintf("environment variable %s must be a float, got %q", key, v), err)
		return def
	}
	return &f
}

// List splits on commas or semicolons. A value that yields no items falls
// back to the default.
func (r *envReader) List(key string, def []string) []string {
	v, ok := r.raw(key)
	if !ok {
		return slices.Clone(def)
	}
	items := splitList(v)
	if len(items) == 0 {
		return slices.Clone(def)
	}
	return items
}

func splitList(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' })
	items := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			items = append(items, f)
		}
	}
	return items
}
