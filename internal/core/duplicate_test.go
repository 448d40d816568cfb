package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ----------------------------------------------------------------------------
// DuplicateResolver Tests
// ----------------------------------------------------------------------------

func personBundle(code, taxCode string) *EntityBundle {
	b := &EntityBundle{Type: TypeAdultMember, RowNumber: 2, Core: newRecord("people")}
	if code != "" {
		b.Core.Values["code"] = code
	}
	if taxCode != "" {
		b.Core.Values["tax_code"] = taxCode
	}
	return b
}

func TestDuplicateResolver_Resolve(t *testing.T) {
	existing := map[string][]string{
		findKey("people", "code", "A1"):                   {"p-1"},
		findKey("people", "code", "TWIN"):                 {"p-2", "p-3"},
		findKey("people", "tax_code", "RSSMRA85T10A562S"): {"p-1"},
		findKey("people", "tax_code", "VRDLGU90A41H501W"): {"p-9"},
	}

	tests := []struct {
		name       string
		bundle     *EntityBundle
		update     bool
		wantAction DecisionAction
		wantID     string
		wantReason string
	}{
		{
			name:       "new key inserts",
			bundle:     personBundle("B2", ""),
			wantAction: ActionInsert,
		},
		{
			name:       "existing key without update conflicts",
			bundle:     personBundle("A1", ""),
			wantAction: ActionConflict,
			wantID:     "p-1",
			wantReason: "Codice già esistente",
		},
		{
			name:       "existing key with update updates",
			bundle:     personBundle("A1", ""),
			update:     true,
			wantAction: ActionUpdate,
			wantID:     "p-1",
		},
		{
			name:       "key is normalized before lookup",
			bundle:     personBundle(" a 1 ", ""),
			update:     true,
			wantAction: ActionUpdate,
			wantID:     "p-1",
		},
		{
			name:       "ambiguous key conflicts even with update",
			bundle:     personBundle("twin", ""),
			update:     true,
			wantAction: ActionConflict,
			wantReason: "ambiguous match: 2 records",
		},
		{
			name:       "guard on the same record is fine",
			bundle:     personBundle("A1", "RSSMRA85T10A562S"),
			update:     true,
			wantAction: ActionUpdate,
			wantID:     "p-1",
		},
		{
			name:       "guard on another record conflicts",
			bundle:     personBundle("A1", "VRDLGU90A41H501W"),
			update:     true,
			wantAction: ActionConflict,
			wantID:     "p-9",
			wantReason: "già associato a un altro record",
		},
		{
			name:       "guard blocks insert of a known tax code",
			bundle:     personBundle("NEW", "vrdlgu90a41h501w"),
			wantAction: ActionConflict,
			wantID:     "p-9",
		},
		{
			name:       "empty key inserts",
			bundle:     personBundle("", ""),
			wantAction: ActionInsert,
		},
	}

	resolver := NewDuplicateResolver(peopleDefinition())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			finder := &fakeFinder{ids: existing}
			d, err := resolver.Resolve(context.Background(), finder, tt.bundle, tt.update)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, d.Action)
			assert.Equal(t, tt.wantID, d.ExistingID)
			if tt.wantReason != "" {
				assert.Contains(t, d.Reason, tt.wantReason)
			}
		})
	}
}

func TestDuplicateResolver_FallbackKeyColumn(t *testing.T) {
	resolver := NewDuplicateResolver(itemDefinition())
	finder := &fakeFinder{ids: map[string][]string{
		findKey("items", "serial", "SN1"): {"i-1"},
	}}

	b := &EntityBundle{Type: TypeVehicle, Core: newRecord("items")}
	b.Core.Values["serial"] = "sn1"

	d, err := resolver.Resolve(context.Background(), finder, b, true)
	require.NoError(t, err)
	assert.Equal(t, ActionUpdate, d.Action)
	assert.Equal(t, "serial", d.MatchedColumn)
	assert.Equal(t, "SN1", d.MatchedKey)
	assert.Equal(t, []string{findKey("items", "serial", "SN1")}, finder.calls, "empty plate is not looked up")

	t.Run("first non-empty column decides", func(t *testing.T) {
		finder := &fakeFinder{ids: map[string][]string{
			findKey("items", "serial", "SN1"): {"i-1"},
		}}
		b.Core.Values["plate"] = "AB123CD"
		d, err := resolver.Resolve(context.Background(), finder, b, true)
		require.NoError(t, err)
		assert.Equal(t, ActionInsert, d.Action, "a plate miss does not fall through to the serial")
		assert.Len(t, finder.calls, 1)
	})
}

func TestDuplicateResolver_LookupErrorKeepsCause(t *testing.T) {
	resolver := NewDuplicateResolver(peopleDefinition())
	finder := &fakeFinder{err: fmt.Errorf("%w: connection reset", ErrStorageUnavailable)}

	_, err := resolver.Resolve(context.Background(), finder, personBundle("A1", ""), false)
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Error(), "lookup code")
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ab 123 cd", "AB123CD"},
		{"\tRssMra85T10A562s\n", "RSSMRA85T10A562S"},
		{"", ""},
		{"città", "CITTÀ"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeKey(tt.input), tt.input)
	}
}
