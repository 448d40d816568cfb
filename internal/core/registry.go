package core

import (
	"fmt"
	"sync"
)

var (
	registry   = make(map[ImportType]*ImportDefinition)
	registryMu sync.RWMutex
)

// Register adds an import definition to the registry.
// Panics if the type is unknown, already registered, or the definition is inconsistent.
func Register(def ImportDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if !def.Type.Valid() {
		panic(fmt.Sprintf("unknown import type: %s", def.Type))
	}
	if _, exists := registry[def.Type]; exists {
		panic(fmt.Sprintf("import type already registered: %s", def.Type))
	}
	if err := checkDefinition(&def); err != nil {
		panic(fmt.Sprintf("invalid definition %s: %v", def.Type, err))
	}

	registry[def.Type] = &def
}

// checkDefinition verifies that fields reference declared groups and
// that field names are unique.
func checkDefinition(def *ImportDefinition) error {
	if def.Table == "" {
		return fmt.Errorf("missing core table")
	}
	seen := make(map[string]bool, len(def.Fields))
	for _, f := range def.Fields {
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		if f.Group != "" {
			if _, ok := def.Group(f.Group); !ok {
				return fmt.Errorf("field %q references undeclared group %q", f.Name, f.Group)
			}
		}
		if f.Kind == TransformEnum && len(f.EnumValues) == 0 {
			return fmt.Errorf("enum field %q has no values", f.Name)
		}
	}
	for _, col := range def.Key.Columns {
		if _, ok := def.Field(col); !ok {
			return fmt.Errorf("key column %q is not a field", col)
		}
	}
	return nil
}

// Get returns the definition for an import type.
func Get(t ImportType) (*ImportDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[t]
	return def, ok
}

// Lookup returns the definition or *UnknownImportTypeError.
func Lookup(t ImportType) (*ImportDefinition, error) {
	def, ok := Get(t)
	if !ok {
		return nil, &UnknownImportTypeError{ImportType: t}
	}
	return def, nil
}

// All returns the registered definitions in ImportTypes order.
func All() []*ImportDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]*ImportDefinition, 0, len(registry))
	for _, t := range ImportTypes {
		if def, ok := registry[t]; ok {
			result = append(result, def)
		}
	}
	return result
}

// Clear removes all registered definitions.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[ImportType]*ImportDefinition)
}

// FieldInfo describes a field for mapping UIs and the CLI.
type FieldInfo struct {
	Name       string        `json:"name"`
	Label      string        `json:"label,omitempty"`
	Table      string        `json:"table"`
	Kind       TransformKind `json:"kind"`
	Required   bool          `json:"required,omitempty"`
	OneOf      string        `json:"oneOf,omitempty"`
	Aliases    []string      `json:"aliases,omitempty"`
	EnumValues []string      `json:"enumValues,omitempty"`
	Default    any           `json:"default,omitempty"`
}

// TypeInfo describes a registered import type.
type TypeInfo struct {
	Type   ImportType  `json:"type"`
	Label  string      `json:"label"`
	Table  string      `json:"table"`
	Key    []string    `json:"key"`
	Fields []FieldInfo `json:"fields"`
}

// Describe returns the serializable description of def.
func Describe(def *ImportDefinition) TypeInfo {
	info := TypeInfo{
		Type:   def.Type,
		Label:  def.Label,
		Table:  def.Table,
		Key:    def.Key.Columns,
		Fields: make([]FieldInfo, len(def.Fields)),
	}
	for i, f := range def.Fields {
		info.Fields[i] = FieldInfo{
			Name:       f.Name,
			Label:      f.Label,
			Table:      def.TableFor(f),
			Kind:       f.Kind,
			Required:   f.Required,
			OneOf:      f.OneOf,
			Aliases:    f.Aliases,
			EnumValues: f.EnumValues,
			Default:    f.Default,
		}
	}
	return info
}

// ImportTypes describes every registered import type.
func (s *Service) ImportTypes() []TypeInfo {
	defs := All()
	out := make([]TypeInfo, len(defs))
	for i, def := range defs {
		out[i] = Describe(def)
	}
	return out
}
