package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ----------------------------------------------------------------------------
// ResolveMapping Tests
// ----------------------------------------------------------------------------

func mappedFields(m ColumnMapping) map[string]string {
	out := make(map[string]string, len(m))
	for _, e := range m {
		out[e.SourceHeader] = e.TargetField
	}
	return out
}

func TestResolveMapping_Exact(t *testing.T) {
	def := peopleDefinition()
	headers := []string{"Cognome", "Nome", "Codice", "Data di nascita", "Codice Fiscale", "E-Mail", "Città"}

	m, err := ResolveMapping(headers, def, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"Cognome":         "last_name",
		"Nome":            "first_name",
		"Codice":          "code",
		"Data di nascita": "birth_date",
		"Codice Fiscale":  "tax_code",
		"E-Mail":          "email",
		"Città":           "city",
	}, mappedFields(m))

	for i, e := range m {
		assert.Equal(t, MatchExact, e.Match, e.SourceHeader)
		if i > 0 {
			assert.Greater(t, e.SourceIndex, m[i-1].SourceIndex, "entries follow column order")
		}
	}

	email, ok := m.Field("email")
	require.True(t, ok)
	assert.Equal(t, "person_contacts", email.TargetTable)
	assert.Equal(t, 5, email.SourceIndex)

	bd, _ := m.Field("birth_date")
	assert.Equal(t, TransformDate, bd.Transform)
	assert.Equal(t, "people", bd.TargetTable)
}

func TestResolveMapping_Fuzzy(t *testing.T) {
	def := peopleDefinition()
	headers := []string{"Codice socio", "Cognome", "Altezza (m)", "Xy"}

	m, err := ResolveMapping(headers, def, nil)
	require.NoError(t, err)

	code, ok := m.Field("code")
	require.True(t, ok)
	assert.Equal(t, MatchFuzzy, code.Match)
	assert.Equal(t, "Codice socio", code.SourceHeader)

	height, ok := m.Field("height")
	require.True(t, ok)
	assert.Equal(t, MatchFuzzy, height.Match)

	assert.Equal(t, []string{"Xy"}, m.Unmapped(headers), "short headers are not fuzzy matched")
}

func TestResolveMapping_LeftmostWins(t *testing.T) {
	def := peopleDefinition()
	headers := []string{"cognome", "COGNOME", "Nome"}

	m, err := ResolveMapping(headers, def, nil)
	require.NoError(t, err)

	ln, ok := m.Field("last_name")
	require.True(t, ok)
	assert.Equal(t, 0, ln.SourceIndex)
	assert.Equal(t, []string{"COGNOME"}, m.Unmapped(headers))
}

func TestResolveMapping_Overrides(t *testing.T) {
	def := peopleDefinition()

	tests := []struct {
		name      string
		headers   []string
		overrides map[string]string
		want      map[string]string
		wantMatch map[string]MatchKind
	}{
		{
			name:      "override binds unrecognized header",
			headers:   []string{"Colonna X", "Codice"},
			overrides: map[string]string{"Colonna X": "last_name"},
			want:      map[string]string{"Colonna X": "last_name", "Codice": "code"},
			wantMatch: map[string]MatchKind{"Colonna X": MatchOverride, "Codice": MatchExact},
		},
		{
			name:      "override takes field from automatic match",
			headers:   []string{"Cognome", "Nome", "Cognome acquisito"},
			overrides: map[string]string{"Cognome acquisito": "last_name"},
			want:      map[string]string{"Nome": "first_name", "Cognome acquisito": "last_name"},
			wantMatch: map[string]MatchKind{"Cognome acquisito": MatchOverride},
		},
		{
			name:      "ignore drops the column",
			headers:   []string{"Cognome", "Nome"},
			overrides: map[string]string{"Cognome": IgnoreColumn},
			want:      map[string]string{"Nome": "first_name"},
		},
		{
			name:      "empty target drops the column",
			headers:   []string{"Cognome", "Nome"},
			overrides: map[string]string{"Nome": ""},
			want:      map[string]string{"Cognome": "last_name"},
		},
		{
			name:      "override key matched by normalized spelling",
			headers:   []string{"Data nascita", "Cognome"},
			overrides: map[string]string{" DATA-NASCITA ": "birth_date"},
			want:      map[string]string{"Data nascita": "birth_date", "Cognome": "last_name"},
			wantMatch: map[string]MatchKind{"Data nascita": MatchOverride},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ResolveMapping(tt.headers, def, tt.overrides)
			require.NoError(t, err)
			assert.Equal(t, tt.want, mappedFields(m))
			for _, e := range m {
				if want, ok := tt.wantMatch[e.SourceHeader]; ok {
					assert.Equal(t, want, e.Match, e.SourceHeader)
				}
			}
		})
	}
}

func TestResolveMapping_OverrideErrors(t *testing.T) {
	def := peopleDefinition()
	headers := []string{"Cognome", "Nome"}

	t.Run("unknown column", func(t *testing.T) {
		_, err := ResolveMapping(headers, def, map[string]string{"Indirizzo": "street"})
		var ce *UnknownColumnError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "Indirizzo", ce.Header)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := ResolveMapping(headers, def, map[string]string{"Nome": "nickname"})
		var fe *UnknownFieldError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "nickname", fe.Field)
		assert.Equal(t, TypeAdultMember, fe.ImportType)
	})
}

func TestResolveMapping_Deterministic(t *testing.T) {
	def := peopleDefinition()
	headers := []string{"Codice socio", "cognome", "Nome", "Mail", "contatti", "via", "civico", "Codice fiscale"}
	overrides := map[string]string{"Nome": "first_name", "civico": "street_number"}

	first, err := ResolveMapping(headers, def, overrides)
	require.NoError(t, err)
	for range 20 {
		again, err := ResolveMapping(headers, def, overrides)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestResolveMapping_BlankHeaders(t *testing.T) {
	def := peopleDefinition()
	headers := []string{"", "Cognome", "  "}

	m, err := ResolveMapping(headers, def, nil)
	require.NoError(t, err)
	assert.Len(t, m, 1)
	assert.Empty(t, m.Unmapped(headers))
}

// ----------------------------------------------------------------------------
// Missing / RequireFields Tests
// ----------------------------------------------------------------------------

func TestColumnMapping_Missing(t *testing.T) {
	tests := []struct {
		name    string
		def     *ImportDefinition
		headers []string
		want    []string
	}{
		{
			name:    "all required mapped",
			def:     peopleDefinition(),
			headers: []string{"Codice", "Cognome"},
			want:    nil,
		},
		{
			name:    "required missing",
			def:     peopleDefinition(),
			headers: []string{"Nome"},
			want:    []string{"code", "last_name"},
		},
		{
			name:    "one-of satisfied by either",
			def:     itemDefinition(),
			headers: []string{"Seriale"},
			want:    nil,
		},
		{
			name:    "one-of unsatisfied",
			def:     itemDefinition(),
			headers: []string{"Marca"},
			want:    []string{"plate|serial"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ResolveMapping(tt.headers, tt.def, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Missing(tt.def))

			err = m.RequireFields(tt.def)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			var me *MissingRequiredFieldError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.want, me.Fields)
		})
	}
}

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Data di nascita", "datadinascita"},
		{"  CITTÀ  ", "citta"},
		{"N. Matricola", "nmatricola"},
		{"e-mail", "email"},
		{"Cod._Fiscale", "codfiscale"},
		{"---", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHeader(tt.input))
		})
	}
}

func TestColumnMapping_Clone(t *testing.T) {
	m := ColumnMapping{{SourceHeader: "a", TargetField: "code"}}
	c := m.Clone()
	c[0].TargetField = "last_name"
	assert.Equal(t, "code", m[0].TargetField)
	assert.Nil(t, ColumnMapping(nil).Clone())
}
