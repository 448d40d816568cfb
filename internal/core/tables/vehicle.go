package tables

import (
	"strings"

	"github.com/easyvol/csvimport/internal/core"
)

func init() {
	registerVehicles()
}

var (
	vehicleTypes     = []string{"veicolo", "natante", "rimorchio"}
	vehicleStatuses  = []string{"operativo", "in_manutenzione", "fuori_servizio", "dismesso"}
	maintenanceTypes = []string{"ordinaria", "straordinaria", "revisione", "guasto", "riparazione", "anomalie"}
)

func registerVehicles() {
	year := integer("year", "Anno", "anno", "anno immatricolazione")
	year.Validator = ValidateYear

	fields := []core.FieldSpec{
		enum("vehicle_type", "Tipo mezzo", vehicleTypes, "veicolo", "tipo", "tipo_mezzo", "tipologia"),
		text("name", "Nome", "nome", "denominazione"),
		oneOf("vehicle_key", normalized(text("license_plate", "Targa", "targa"), NormalizePlate, nil)),
		text("brand", "Marca", "marca", "produttore"),
		text("model", "Modello", "modello"),
		year,
		oneOf("vehicle_key", normalized(text("serial_number", "Numero di serie", "numero_serie", "matricola", "telaio"), strings.ToUpper, nil)),
		enum("status", "Stato", vehicleStatuses, "operativo", "stato"),
		date("insurance_expiry", "Scadenza assicurazione", "scadenza_assicurazione"),
		date("inspection_expiry", "Scadenza revisione", "scadenza_revisione"),
		text("notes", "Note", "note"),

		child(enum("maintenance_type", "Tipo manutenzione", maintenanceTypes, "ordinaria", "tipo_manutenzione"),
			core.GroupMaintenance, "", "maintenance_type"),
		child(date("maintenance_date", "Data manutenzione", "data_manutenzione"), core.GroupMaintenance, "", "date"),
		child(text("maintenance_description", "Descrizione manutenzione", "descrizione_manutenzione", "intervento"),
			core.GroupMaintenance, "", "description"),
		child(money("maintenance_cost", "Costo manutenzione", "costo_manutenzione", "costo"), core.GroupMaintenance, "", "cost"),
		child(text("maintenance_performed_by", "Eseguita da", "eseguita_da", "officina"), core.GroupMaintenance, "", "performed_by"),
		child(text("maintenance_notes", "Note manutenzione", "note_manutenzione"), core.GroupMaintenance, "", "notes"),
	}

	core.Register(core.ImportDefinition{
		Type:   core.TypeVehicle,
		Label:  "Mezzi",
		Table:  "vehicles",
		Fields: fields,
		Groups: []core.ChildGroupDef{
			{Name: core.GroupMaintenance, Table: "vehicle_maintenance", ParentColumn: "vehicle_id", Trigger: []string{"date"}},
		},
		Key: core.KeyDef{
			Columns:        []string{"license_plate", "serial_number"},
			ConflictReason: "Targa già esistente",
		},
		Finalize: finalizeVehicle,
	})
}

// finalizeVehicle fills the display name when the row has none.
func finalizeVehicle(b *core.EntityBundle, env core.FinalizeEnv) {
	b.Core.SetDefault("name", VehicleName(b.Core, env))
}

// VehicleName builds the name of an unnamed vehicle: plate, then serial
// number, then brand and model, then "Mezzo" with a timestamp.
func VehicleName(rec core.Record, env core.FinalizeEnv) string {
	if plate := rec.String("license_plate"); plate != "" {
		return plate
	}
	if serial := rec.String("serial_number"); serial != "" {
		return serial
	}
	if bm := strings.TrimSpace(rec.String("brand") + " " + rec.String("model")); bm != "" {
		return bm
	}
	return "Mezzo " + env.Now.Format("20060102150405")
}
