package tables

import (
	"strings"

	"github.com/easyvol/csvimport/internal/core"
)

func init() {
	registerWarehouseItems()
}

var (
	warehouseStatuses = []string{"disponibile", "in_manutenzione", "fuori_servizio"}
	movementTypes     = []string{"carico", "scarico", "assegnazione", "restituzione", "trasferimento"}
)

func registerWarehouseItems() {
	core.Register(core.ImportDefinition{
		Type:  core.TypeWarehouseItem,
		Label: "Magazzino",
		Table: "warehouse_items",
		Fields: []core.FieldSpec{
			required(normalized(text("code", "Codice", "codice", "codice articolo", "cod"), strings.ToUpper, nil)),
			required(text("name", "Nome", "nome", "articolo", "denominazione")),
			text("category", "Categoria", "categoria"),
			text("description", "Descrizione", "descrizione"),
			withDefault(integer("quantity", "Quantità", "quantita", "qta", "giacenza"), int64(0)),
			withDefault(integer("minimum_quantity", "Quantità minima", "quantita_minima", "scorta minima"), int64(0)),
			text("unit", "Unità", "unita", "unita di misura", "um"),
			text("location", "Posizione", "posizione", "ubicazione"),
			enum("status", "Stato", warehouseStatuses, "disponibile", "stato"),
			boolean("consumable", "Consumabile", "consumabile", "materiale di consumo"),

			child(enum("movement_type", "Tipo movimento", movementTypes, "carico", "tipo_movimento"),
				core.GroupMovements, "", "movement_type"),
			child(integer("movement_quantity", "Quantità movimento", "quantita_movimento"), core.GroupMovements, "", "quantity"),
			child(text("movement_destination", "Destinazione", "destinazione"), core.GroupMovements, "", "destination"),
			child(text("movement_notes", "Note movimento", "note_movimento"), core.GroupMovements, "", "notes"),
		},
		Groups: []core.ChildGroupDef{
			{Name: core.GroupMovements, Table: "warehouse_movements", ParentColumn: "item_id", Trigger: []string{"quantity"}},
		},
		Key: core.KeyDef{
			Columns:        []string{"code"},
			ConflictReason: "Codice già esistente",
		},
		Finalize: func(b *core.EntityBundle, env core.FinalizeEnv) {
			if env.CreatedBy == "" {
				return
			}
			for i := range b.Movements {
				b.Movements[i].SetDefault("created_by", env.CreatedBy)
			}
		},
	})
}
