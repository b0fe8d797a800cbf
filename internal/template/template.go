// Package template renders the email subject and body from run variables.
package template

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"revstats/internal/logging"
)

var funcs = template.FuncMap{
	// default returns fallback when value is empty: {{default "today" .DateTo}}
	"default": func(fallback, value string) string {
		if value == "" {
			return fallback
		}
		return value
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// Render evaluates tmplStr against data. Referencing a variable that is not
// in data is an error.
func Render(templateName, tmplStr string, data map[string]string) (string, error) {
	if tmplStr == "" {
		return "", nil
	}

	tmpl, err := template.New(templateName).Funcs(funcs).Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateName, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		logging.Logf(logging.Debug, "Template '%s' variables: %s", templateName, strings.Join(keys(data), ", "))
		return "", fmt.Errorf("failed to execute template '%s': %w", templateName, err)
	}
	return buf.String(), nil
}

func keys(data map[string]string) []string {
	out := make([]string, 0, len(data))
	for k := range data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
