package config

import (
	"os"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// GetEnvObject returns the process environment as a cty object, exposed to
// configuration files as "env". Names that are not valid HCL identifiers are
// rewritten, so "MY-VAR" stays "MY-VAR" and "1PORT" becomes "_PORT".
func GetEnvObject() cty.Value {
	return envObject(os.Environ())
}

func envObject(environ []string) cty.Value {
	envMap := make(map[string]cty.Value, len(environ))

	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		envMap[sanitizeEnvVarName(key)] = cty.StringVal(value)
	}

	return cty.ObjectVal(envMap)
}

// sanitizeEnvVarName maps an environment variable name onto an HCL
// identifier: a letter or underscore followed by letters, digits,
// underscores or hyphens. Anything else becomes an underscore.
func sanitizeEnvVarName(name string) string {
	if name == "" {
		return "_"
	}

	var b strings.Builder
	for i, r := range name {
		valid := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if i > 0 {
			valid = valid || r == '-' || (r >= '0' && r <= '9')
		}

		if valid {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	return b.String()
}
