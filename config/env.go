package config

import (
	"os"
	"regexp"
	"strconv"

	"github.com/joho/godotenv"
)

var (
	envWithDefault = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`)
	envBraced      = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
	envSimple      = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)
)

// expandEnvVars substitutes `${VAR:-default}`, `${VAR}`, and `$VAR`
// references with the named environment variable's value, in that order,
// falling back to the literal default (or the empty string) when unset.
func expandEnvVars(s string) string {
	s = envWithDefault.ReplaceAllStringFunc(s, func(m string) string {
		parts := envWithDefault.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(parts[1]); ok {
			return v
		}
		return parts[2]
	})
	s = envBraced.ReplaceAllStringFunc(s, func(m string) string {
		name := envBraced.FindStringSubmatch(m)[1]
		return os.Getenv(name)
	})
	s = envSimple.ReplaceAllStringFunc(s, func(m string) string {
		name := envSimple.FindStringSubmatch(m)[1]
		return os.Getenv(name)
	})
	return s
}

// parseValue coerces an expanded string back to the Go type it most likely
// represents, so `max_iterations: ${MAX_ITER:-10}` decodes as an int rather
// than staying a string once mapstructure sees it.
func parseValue(value string) interface{} {
	if value == "true" {
		return true
	}
	if value == "false" {
		return false
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// expandEnvVarsInData recurses through a YAML-decoded value, expanding and
// reparsing every string leaf. Grounded on the teacher's
// pkg/config/env.go:ExpandEnvVarsInData.
func expandEnvVarsInData(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = expandEnvVarsInData(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = expandEnvVarsInData(val)
		}
		return out
	case string:
		return parseValue(expandEnvVars(v))
	default:
		return v
	}
}

// loadEnvFiles overlays .env.local then .env onto the process environment,
// tolerating either file's absence. Grounded on the teacher's
// pkg/config/env.go:LoadEnvFiles.
func loadEnvFiles() error {
	for _, path := range []string{".env.local", ".env"} {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
