package tables

import "github.com/easyvol/csvimport/internal/core"

// Field builders keep the definitions readable. Each returns a FieldSpec
// that callers adjust with the option helpers below.

func text(name, label string, aliases ...string) core.FieldSpec {
	return core.FieldSpec{Name: name, Label: label, Aliases: aliases, Kind: core.TransformString}
}

func date(name, label string, aliases ...string) core.FieldSpec {
	return core.FieldSpec{Name: name, Label: label, Aliases: aliases, Kind: core.TransformDate}
}

func boolean(name, label string, aliases ...string) core.FieldSpec {
	return core.FieldSpec{Name: name, Label: label, Aliases: aliases, Kind: core.TransformBoolean}
}

func integer(name, label string, aliases ...string) core.FieldSpec {
	return core.FieldSpec{Name: name, Label: label, Aliases: aliases, Kind: core.TransformNumeric, Integer: true}
}

func money(name, label string, aliases ...string) core.FieldSpec {
	return core.FieldSpec{Name: name, Label: label, Aliases: aliases, Kind: core.TransformNumeric, Precision: 10, Scale: 2}
}

func enum(name, label string, values []string, def string, aliases ...string) core.FieldSpec {
	f := core.FieldSpec{Name: name, Label: label, Aliases: aliases, Kind: core.TransformEnum, EnumValues: values}
	if def != "" {
		f.Default = def
	}
	return f
}

func required(f core.FieldSpec) core.FieldSpec {
	f.Required = true
	return f
}

func oneOf(tag string, f core.FieldSpec) core.FieldSpec {
	f.OneOf = tag
	return f
}

func withDefault(f core.FieldSpec, v any) core.FieldSpec {
	f.Default = v
	return f
}

func normalized(f core.FieldSpec, n func(string) string, v func(string) error) core.FieldSpec {
	f.Normalizer = n
	f.Validator = v
	return f
}

// child routes f to a child group, storing it in column under slot.
func child(f core.FieldSpec, group core.GroupName, slot, column string) core.FieldSpec {
	f.Group = group
	f.Slot = slot
	f.Column = column
	return f
}

// contactFields returns the single-value contact columns plus the
// multi-value "contatti" column.
func contactFields() []core.FieldSpec {
	return []core.FieldSpec{
		child(normalized(text("contact_email", "Email", "email", "e-mail", "mail", "posta elettronica"), NormalizeEmail, ValidateEmail),
			core.GroupContacts, "email", "value"),
		child(normalized(text("contact_pec", "PEC", "pec", "posta certificata"), NormalizeEmail, ValidateEmail),
			core.GroupContacts, "pec", "value"),
		child(normalized(text("contact_telefono", "Telefono", "telefono", "telefono fisso", "tel"), NormalizePhone, nil),
			core.GroupContacts, "telefono_fisso", "value"),
		child(normalized(text("contact_cellulare", "Cellulare", "cellulare", "cell", "mobile"), NormalizePhone, nil),
			core.GroupContacts, "cellulare", "value"),
		{
			Name:     "contacts",
			Label:    "Contatti (separati da ;)",
			Aliases:  []string{"contatti", "recapiti"},
			Kind:     core.TransformMultiValue,
			Group:    core.GroupContacts,
			Column:   "value",
			Classify: ClassifyContact,
		},
	}
}

// addressFields returns the address columns for one address type.
func addressFields(slot string) []core.FieldSpec {
	p := slot + "_"
	return []core.FieldSpec{
		child(text(p+"street", "Via ("+slot+")", "via_"+slot, "indirizzo_"+slot), core.GroupAddresses, slot, "street"),
		child(text(p+"number", "Civico ("+slot+")", "numero_"+slot, "civico_"+slot), core.GroupAddresses, slot, "number"),
		child(text(p+"city", "Città ("+slot+")", "citta_"+slot, "comune_"+slot), core.GroupAddresses, slot, "city"),
		child(normalized(text(p+"province", "Provincia ("+slot+")", "provincia_"+slot, "prov_"+slot), NormalizeProvince, nil),
			core.GroupAddresses, slot, "province"),
		child(normalized(text(p+"cap", "CAP ("+slot+")", "cap_"+slot), NormalizeCAP, ValidateCAP), core.GroupAddresses, slot, "cap"),
	}
}

var addressTrigger = []string{"street", "city"}

// personFields are shared by adult and junior members.
func personFields() []core.FieldSpec {
	return []core.FieldSpec{
		required(text("registration_number", "Matricola", "matricola", "numero matricola", "n. matricola", "tessera")),
		required(text("first_name", "Nome", "nome")),
		required(text("last_name", "Cognome", "cognome")),
		date("birth_date", "Data di nascita", "data_nascita", "nato il", "data di nascita"),
		text("birth_place", "Luogo di nascita", "luogo_nascita", "comune di nascita", "nato a"),
		normalized(text("birth_province", "Provincia di nascita", "provincia_nascita", "prov_nascita"), NormalizeProvince, nil),
		normalized(text("tax_code", "Codice fiscale", "codice_fiscale", "cf", "cod. fiscale"), NormalizeTaxCode, ValidateTaxCode),
		{
			Name: "gender", Label: "Sesso", Aliases: []string{"sesso", "genere"},
			Kind: core.TransformEnum, EnumValues: []string{"M", "F"}, Synonyms: genderSynonyms,
		},
		withDefault(text("nationality", "Nazionalità", "nazionalita", "cittadinanza"), "Italiana"),
		date("registration_date", "Data iscrizione", "data_iscrizione", "iscritto il"),
		date("approval_date", "Data approvazione", "data_approvazione", "approvato il"),
	}
}
