// Package categories owns the hostname→category table shared by the matcher
// and every presentation surface.
package categories

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/haukened/traceless/internal/trace/common/utils"
	"github.com/haukened/traceless/internal/trace/domain"
)

//go:embed default.yaml
var defaultTable []byte

// Table is an immutable hostname→category table. Entries keep file order;
// the first occurrence of a host wins.
type Table struct {
	exact   map[string]domain.Category
	ordered []domain.CategoryEntry
}

type group struct {
	Category string   `yaml:"category"`
	Hosts    []string `yaml:"hosts"`
}

// Parse decodes a YAML table: a sequence of {category, hosts} groups.
func Parse(data []byte) (*Table, error) {
	var groups []group
	if err := yaml.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("decode category table: %w", err)
	}
	t := &Table{exact: make(map[string]domain.Category)}
	for i, g := range groups {
		cat, err := domain.ParseCategory(g.Category)
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", i, err)
		}
		for _, h := range g.Hosts {
			host := utils.CanonicalHost(h)
			if host == "" {
				continue
			}
			if _, dup := t.exact[host]; dup {
				continue
			}
			t.exact[host] = cat
			t.ordered = append(t.ordered, domain.CategoryEntry{Host: host, Category: cat})
		}
	}
	return t, nil
}

// Default returns the built-in table.
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("embedded category table is invalid: %v", err))
	}
	return t
}

// LoadFile reads a table from path, or returns Default when path is empty.
func LoadFile(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category table: %w", err)
	}
	return Parse(data)
}

// Exact returns the category of host when it is itself a table key.
func (t *Table) Exact(host string) (domain.Category, bool) {
	c, ok := t.exact[host]
	return c, ok
}

// Entries returns the rows in scan order. The slice must not be modified.
func (t *Table) Entries() []domain.CategoryEntry { return t.ordered }

// Len returns the number of distinct hosts.
func (t *Table) Len() int { return len(t.ordered) }
