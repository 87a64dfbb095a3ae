package engine

import "strings"

// InjectVariables replaces {key} placeholders in a template with values from
// the variable map. Unrecognized placeholders are left as-is so a typo in a
// rule file is visible in the rendered message instead of vanishing.
func InjectVariables(template string, variables map[string]string) string {
	if template == "" || !strings.Contains(template, "{") {
		return template
	}
	pairs := make([]string, 0, len(variables)*2)
	for k, v := range variables {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
