package tables

import "github.com/easyvol/csvimport/internal/core"

func init() {
	registerAdultMembers()
}

var (
	memberTypes       = []string{"ordinario", "fondatore"}
	memberStatuses    = []string{"attivo", "decaduto", "dimesso", "in_aspettativa", "sospeso", "in_congedo"}
	volunteerStatuses = []string{"operativo", "non_operativo", "in_formazione"}
)

func registerAdultMembers() {
	fields := personFields()
	fields = append(fields,
		enum("member_type", "Tipo socio", memberTypes, "ordinario", "tipo_socio", "tipologia socio"),
		enum("member_status", "Stato socio", memberStatuses, "attivo", "stato_socio"),
		enum("volunteer_status", "Stato volontario", volunteerStatuses, "in_formazione", "stato_volontario", "stato operativo"),
		boolean("privacy_consent", "Consenso privacy", "consenso_privacy", "privacy"),
		text("notes", "Note", "note", "annotazioni"),
	)
	fields = append(fields, contactFields()...)
	fields = append(fields, addressFields("residenza")...)
	fields = append(fields, addressFields("domicilio")...)
	fields = append(fields,
		child(text("employer_name", "Datore di lavoro", "datore_lavoro", "azienda"), core.GroupEmployment, "", "employer_name"),
		child(text("employer_address", "Indirizzo lavoro", "indirizzo_lavoro"), core.GroupEmployment, "", "employer_address"),
		child(text("employer_city", "Città lavoro", "citta_lavoro"), core.GroupEmployment, "", "employer_city"),
		child(normalized(text("employer_phone", "Telefono lavoro", "telefono_lavoro"), NormalizePhone, nil),
			core.GroupEmployment, "", "employer_phone"),
	)

	core.Register(core.ImportDefinition{
		Type:   core.TypeAdultMember,
		Label:  "Soci maggiorenni",
		Table:  "members",
		Fields: fields,
		Groups: []core.ChildGroupDef{
			{Name: core.GroupContacts, Table: "member_contacts", ParentColumn: "member_id", SlotColumn: "contact_type", Trigger: []string{"value"}},
			{Name: core.GroupAddresses, Table: "member_addresses", ParentColumn: "member_id", SlotColumn: "address_type", Trigger: addressTrigger},
			{Name: core.GroupEmployment, Table: "member_employment", ParentColumn: "member_id", Trigger: []string{"employer_name"}},
		},
		Key: core.KeyDef{
			Columns:        []string{"registration_number"},
			Guard:          []string{"tax_code"},
			ConflictReason: "Matricola già esistente",
		},
		Finalize: func(b *core.EntityBundle, env core.FinalizeEnv) {
			deriveFromTaxCode(&b.Core, env.Now)
		},
	})
}
