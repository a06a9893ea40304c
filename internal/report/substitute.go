package report

import (
	"regexp"

	"github.com/hashicorp/go-multierror"

	apperrors "kpisync/pkg/errors"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Placeholders lists the distinct placeholder names in template, in order of
// first appearance.
func Placeholders(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Substitute replaces every {name} in def.Template with params[name]. All
// placeholders are checked before any replacement, so a missing parameter
// never yields a partially substituted query. The query text is not parsed.
func Substitute(def Definition, params map[string]string) (string, error) {
	for _, name := range Placeholders(def.Template) {
		if _, ok := params[name]; !ok {
			return "", apperrors.MissingParameter(name, def.Name)
		}
	}

	return placeholderPattern.ReplaceAllStringFunc(def.Template, func(token string) string {
		return params[token[1:len(token)-1]]
	}), nil
}

// ValidateParameters reports every missing placeholder across the catalog.
func ValidateParameters(catalog *Catalog, params map[string]string) error {
	var result *multierror.Error
	for _, def := range catalog.defs {
		for _, name := range Placeholders(def.Template) {
			if _, ok := params[name]; !ok {
				result = multierror.Append(result, apperrors.MissingParameter(name, def.Name))
			}
		}
	}
	return result.ErrorOrNil()
}
