package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "kpisync/pkg/errors"
	"kpisync/pkg/models"
)

// Definition is one report: its name doubles as the destination sheet name.
type Definition struct {
	Name     string
	Template string
}

// Catalog is an ordered, read-only list of report definitions with unique names.
type Catalog struct {
	defs []Definition
}

// NewCatalog builds a catalog, preserving the given order.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	seen := make(map[string]struct{}, len(defs))
	out := make([]Definition, 0, len(defs))

	for i, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, apperrors.New(apperrors.ErrCodeInvalidCatalog, fmt.Sprintf("report %d has no name", i+1))
		}
		if strings.TrimSpace(def.Template) == "" {
			return nil, apperrors.New(apperrors.ErrCodeInvalidCatalog, fmt.Sprintf("report %q has an empty query", name)).
				WithContext("report", name)
		}
		if _, dup := seen[name]; dup {
			return nil, apperrors.DuplicateReportName(name)
		}
		seen[name] = struct{}{}
		out = append(out, Definition{Name: name, Template: def.Template})
	}

	return &Catalog{defs: out}, nil
}

// FromConfig builds a catalog from the reports list of the config file.
func FromConfig(reports []models.Report) (*Catalog, error) {
	defs := make([]Definition, len(reports))
	for i, r := range reports {
		defs[i] = Definition{Name: r.Name, Template: r.Query}
	}
	return NewCatalog(defs...)
}

// Definitions returns a copy of the definitions in catalog order.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Len returns the number of reports.
func (c *Catalog) Len() int {
	return len(c.defs)
}

// Names returns report names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.defs))
	for i, d := range c.defs {
		names[i] = d.Name
	}
	return names
}

// Lookup finds a definition by name.
func (c *Catalog) Lookup(name string) (Definition, bool) {
	for _, d := range c.defs {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}

// Select returns a catalog restricted to names, keeping catalog order.
func (c *Catalog) Select(names ...string) (*Catalog, error) {
	if len(names) == 0 {
		return c, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := c.Lookup(n); !ok {
			return nil, apperrors.New(apperrors.ErrCodeInvalidCatalog, fmt.Sprintf("unknown report %q", n)).
				WithContext("report", n)
		}
		want[n] = true
	}
	var defs []Definition
	for _, d := range c.defs {
		if want[d.Name] {
			defs = append(defs, d)
		}
	}
	return &Catalog{defs: defs}, nil
}

const headerPrefix = "-- "

// ParseCatalog reads a SQL catalog where every report starts with a
// "-- <title>" line at column 0 and its query runs until the next header.
// Text before the first header is ignored.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	var (
		defs    []Definition
		current *Definition
		body    strings.Builder
	)

	flush := func() {
		if current != nil {
			current.Template = strings.TrimSpace(body.String())
			defs = append(defs, *current)
		}
		body.Reset()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, headerPrefix) {
			flush()
			current = &Definition{Name: strings.TrimSpace(strings.TrimPrefix(line, headerPrefix))}
			continue
		}
		if current != nil {
			body.WriteString(line)
			body.WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidCatalog, "failed to read catalog")
	}
	flush()

	if len(defs) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeInvalidCatalog, "catalog contains no '-- <title>' headers")
	}
	return NewCatalog(defs...)
}

// ParseCatalogFile opens path and parses it with ParseCatalog.
func ParseCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path) // #nosec G304 - catalog path comes from the operator
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeFileNotFound, fmt.Sprintf("failed to open catalog %s", path))
	}
	defer f.Close()

	return ParseCatalog(f)
}
