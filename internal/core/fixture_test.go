package core

import (
	"context"
	"fmt"
	"strings"
)

// peopleDefinition is a small definition covering every transform kind,
// two child groups and a guarded natural key.
func peopleDefinition() *ImportDefinition {
	return &ImportDefinition{
		Type:  TypeAdultMember,
		Label: "People",
		Table: "people",
		Fields: []FieldSpec{
			{Name: "code", Aliases: []string{"codice", "matricola"}, Kind: TransformString, Required: true, Normalizer: strings.ToUpper},
			{Name: "last_name", Aliases: []string{"cognome"}, Kind: TransformString, Required: true},
			{Name: "first_name", Aliases: []string{"nome"}, Kind: TransformString},
			{Name: "birth_date", Aliases: []string{"data di nascita", "nato il"}, Kind: TransformDate},
			{Name: "active", Aliases: []string{"attivo"}, Kind: TransformBoolean},
			{Name: "level", Aliases: []string{"livello"}, Kind: TransformEnum, EnumValues: []string{"base", "avanzato"}, Synonyms: map[string]string{"adv": "avanzato"}, Default: "base"},
			{Name: "height", Aliases: []string{"altezza"}, Kind: TransformNumeric, Precision: 5, Scale: 2},
			{Name: "tax_code", Aliases: []string{"codice fiscale", "cf"}, Kind: TransformString, Normalizer: strings.ToUpper},
			{Name: "email", Column: "value", Aliases: []string{"mail"}, Kind: TransformString, Group: GroupContacts, Slot: "email"},
			{Name: "phone", Column: "value", Aliases: []string{"telefono"}, Kind: TransformString, Group: GroupContacts, Slot: "phone"},
			{Name: "contacts", Column: "value", Aliases: []string{"contatti"}, Kind: TransformMultiValue, Group: GroupContacts, Classify: classifyTestContact},
			{Name: "street", Aliases: []string{"via"}, Kind: TransformString, Group: GroupAddresses, Slot: "home"},
			{Name: "street_number", Column: "number", Aliases: []string{"civico"}, Kind: TransformString, Group: GroupAddresses, Slot: "home"},
			{Name: "city", Aliases: []string{"citta"}, Kind: TransformString, Group: GroupAddresses, Slot: "home"},
		},
		Groups: []ChildGroupDef{
			{Name: GroupContacts, Table: "person_contacts", ParentColumn: "person_id", SlotColumn: "kind", Trigger: []string{"value"}},
			{Name: GroupAddresses, Table: "person_addresses", ParentColumn: "person_id", SlotColumn: "kind", Trigger: []string{"street", "city"}},
		},
		Key: KeyDef{
			Columns:        []string{"code"},
			Guard:          []string{"tax_code"},
			ConflictReason: "Codice già esistente",
		},
	}
}

// itemDefinition has a one-of key and a fallback key column.
func itemDefinition() *ImportDefinition {
	return &ImportDefinition{
		Type:  TypeVehicle,
		Table: "items",
		Fields: []FieldSpec{
			{Name: "plate", Aliases: []string{"targa"}, Kind: TransformString, OneOf: "item_key"},
			{Name: "serial", Aliases: []string{"seriale"}, Kind: TransformString, OneOf: "item_key"},
			{Name: "brand", Aliases: []string{"marca"}, Kind: TransformString},
		},
		Key: KeyDef{Columns: []string{"plate", "serial"}},
	}
}

func classifyTestContact(item string) (string, bool) {
	switch {
	case strings.Contains(item, "@"):
		return "email", true
	case strings.Trim(item, "0123456789 +") == "":
		return "phone", true
	}
	return "", false
}

func findKey(table, column, key string) string {
	return fmt.Sprintf("%s.%s=%s", table, column, key)
}

// fakeFinder answers FindByKey from a fixed map.
type fakeFinder struct {
	ids   map[string][]string
	err   error
	calls []string
}

func (f *fakeFinder) FindByKey(_ context.Context, table, column, key string) ([]string, error) {
	k := findKey(table, column, key)
	f.calls = append(f.calls, k)
	if f.err != nil {
		return nil, f.err
	}
	return f.ids[k], nil
}
