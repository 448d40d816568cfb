package tables

import "github.com/easyvol/csvimport/internal/core"

func init() {
	registerJuniorMembers()
}

func guardianFields(slot string) []core.FieldSpec {
	p := "guardian_" + slot + "_"
	return []core.FieldSpec{
		child(text(p+"first_name", "Nome "+slot, "nome_"+slot), core.GroupGuardians, slot, "first_name"),
		child(text(p+"last_name", "Cognome "+slot, "cognome_"+slot), core.GroupGuardians, slot, "last_name"),
		child(normalized(text(p+"tax_code", "Codice fiscale "+slot, "cf_"+slot, "codice_fiscale_"+slot), NormalizeTaxCode, ValidateTaxCode),
			core.GroupGuardians, slot, "tax_code"),
		child(normalized(text(p+"phone", "Telefono "+slot, "telefono_"+slot, "cellulare_"+slot), NormalizePhone, nil),
			core.GroupGuardians, slot, "phone"),
		child(normalized(text(p+"email", "Email "+slot, "email_"+slot), NormalizeEmail, ValidateEmail),
			core.GroupGuardians, slot, "email"),
	}
}

func registerJuniorMembers() {
	fields := personFields()
	fields = append(fields,
		enum("member_status", "Stato socio", memberStatuses, "attivo", "stato_socio"),
		text("notes", "Note", "note", "annotazioni"),
	)
	fields = append(fields, contactFields()...)
	fields = append(fields, addressFields("residenza")...)
	fields = append(fields, guardianFields("padre")...)
	fields = append(fields, guardianFields("madre")...)

	core.Register(core.ImportDefinition{
		Type:   core.TypeJuniorMember,
		Label:  "Soci minorenni (cadetti)",
		Table:  "junior_members",
		Fields: fields,
		Groups: []core.ChildGroupDef{
			{Name: core.GroupContacts, Table: "junior_member_contacts", ParentColumn: "junior_member_id", SlotColumn: "contact_type", Trigger: []string{"value"}},
			{Name: core.GroupAddresses, Table: "junior_member_addresses", ParentColumn: "junior_member_id", SlotColumn: "address_type", Trigger: addressTrigger},
			{Name: core.GroupGuardians, Table: "junior_member_guardians", ParentColumn: "junior_member_id", SlotColumn: "guardian_type", Trigger: []string{"first_name", "last_name"}},
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
