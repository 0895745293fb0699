package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv substitutes environment variables in YAML content through Go
// templates, using {{.VAR_NAME}} syntax instead of $-expansion. Triage
// configs carry literal $ characters in alert matchers and correlation
// patterns (^payment-.*$, p@ss$word), so shell-style expansion would
// mangle them.
//
// Examples:
//   - {{.LLM_API_KEY}} → value of LLM_API_KEY
//   - {{.REDIS_ADDR}} → value of REDIS_ADDR
//   - {{.DB_HOST}}:{{.DB_PORT}} → both expanded, colon preserved
//   - matcher: "^user_.*\\$" → untouched, no template syntax present
//
// Missing variables expand to the empty string; config validation rejects
// required fields left empty. Malformed templates pass the content through
// unchanged so plain YAML never fails to load.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			env[key] = value
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return data
	}
	return buf.Bytes()
}
