// Package config handles YAML config file loading for framecap run.
package config

import (
	"os"
	"regexp"
)

// envRef matches ${VAR} and ${VAR:-default}. Bare $VAR is left alone
// because '$' also opens text records in status commands.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv substitutes environment references in input. A variable that
// is unset or empty takes its default, or "" when none is given. Missing
// required values such as the remote token are caught by validation.
func ExpandEnv(input string) string {
	return envRef.ReplaceAllStringFunc(input, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		return m[2]
	})
}
