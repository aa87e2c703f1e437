package data

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

//go:embed yaml/interactables.yaml
var defaultInteractables []byte

// InteractableType is one entry of the type table.
type InteractableType struct {
	Type    string   `yaml:"type"`
	Aliases []string `yaml:"aliases"`
	Range   *int     `yaml:"range"` // nil when the table gives no range
}

// DefaultRange returns the type's interaction range and whether the table
// sets one. A range of 0 is a valid setting.
func (it *InteractableType) DefaultRange() (int, bool) {
	if it == nil || it.Range == nil {
		return 0, false
	}
	return *it.Range, true
}

type interactableFile struct {
	Types               []InteractableType `yaml:"types"`
	CollisionKeywords   []string           `yaml:"collision_keywords"`
	CollisionProperties []string           `yaml:"collision_properties"`
}

// InteractableTable resolves layer names to interactable types and decides
// which layers are collidable.
type InteractableTable struct {
	byAlias    map[string]*InteractableType
	types      []InteractableType
	keywords   []string
	properties []string
}

// LoadInteractableTable loads the type table from a YAML file.
// An empty path loads the built-in table.
func LoadInteractableTable(path string) (*InteractableTable, error) {
	if path == "" {
		return ParseInteractableTable(defaultInteractables)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read interactable table: %w", err)
	}
	return ParseInteractableTable(raw)
}

// DefaultInteractableTable returns the built-in table.
func DefaultInteractableTable() *InteractableTable {
	t, err := ParseInteractableTable(defaultInteractables)
	if err != nil {
		panic(fmt.Sprintf("embedded interactable table: %v", err))
	}
	return t
}

// ParseInteractableTable parses a YAML type table.
func ParseInteractableTable(raw []byte) (*InteractableTable, error) {
	var file interactableFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse interactable table: %w", err)
	}
	t := &InteractableTable{
		byAlias: make(map[string]*InteractableType),
		types:   file.Types,
	}
	for i := range t.types {
		it := &t.types[i]
		if it.Type == "" {
			return nil, fmt.Errorf("parse interactable table: entry %d has no type", i)
		}
		if it.Range != nil && *it.Range < 0 {
			return nil, fmt.Errorf("parse interactable table: type %s has negative range %d", it.Type, *it.Range)
		}
		t.byAlias[Fold(it.Type)] = it
		for _, a := range it.Aliases {
			t.byAlias[Fold(a)] = it
		}
	}
	for _, k := range file.CollisionKeywords {
		t.keywords = append(t.keywords, Fold(k))
	}
	t.properties = file.CollisionProperties
	return t, nil
}

// Fold case-folds a name for alias comparison.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Lookup returns the type an alias names, or nil.
func (t *InteractableTable) Lookup(name string) *InteractableType {
	if name == "" {
		return nil
	}
	return t.byAlias[Fold(name)]
}

// IsCollisionName reports whether a layer name contains a collision keyword.
func (t *InteractableTable) IsCollisionName(name string) bool {
	folded := Fold(name)
	for _, k := range t.keywords {
		if strings.Contains(folded, k) {
			return true
		}
	}
	return false
}

// CollisionProperties lists the boolean property names that mark something collidable.
func (t *InteractableTable) CollisionProperties() []string {
	return t.properties
}

// Count returns the number of interactable types.
func (t *InteractableTable) Count() int {
	return len(t.types)
}
