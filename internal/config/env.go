package config

import (
	"os"
	"regexp"
)

// envVarPattern matches ${VAR} only. A bare $word is left alone so prompts, passwords
// and keys containing a dollar sign survive.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces ${VAR} with the environment value; unset variables expand to the
// empty string.
func ExpandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}
