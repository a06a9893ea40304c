package report

import (
	_ "embed"
	"strings"
)

//go:embed default_catalog.sql
var defaultCatalogSQL string

// DefaultCatalog returns the built-in bank marketing reports. They reference
// {project_id}, {dataset}, {audit_dataset} and {audit_table}.
func DefaultCatalog() *Catalog {
	catalog, err := ParseCatalog(strings.NewReader(defaultCatalogSQL))
	if err != nil {
		panic("report: invalid built-in catalog: " + err.Error())
	}
	return catalog
}
