package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyvol/csvimport/internal/core"
)

func TestParseMappings(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{name: "none", pairs: nil, want: nil},
		{
			name:  "trims around the separator",
			pairs: []string{"Tessera n. = registration_number", "Note interne=-"},
			want:  map[string]string{"Tessera n.": "registration_number", "Note interne": "-"},
		},
		{
			name:  "last equals sign splits",
			pairs: []string{"Formula =A1=notes"},
			want:  map[string]string{"Formula =A1": "notes"},
		},
		{name: "missing separator", pairs: []string{"Targa"}, wantErr: true},
		{name: "empty header", pairs: []string{"=license_plate"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMappings(tt.pairs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTypesCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"types", "--json"})
	require.NoError(t, cmd.Execute())

	var infos []core.TypeInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &infos))
	require.Len(t, infos, len(core.ImportTypes))
	assert.Equal(t, core.TypeVehicle, infos[2].Type)
}

func TestTypesCommand_Table(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"types"})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(out.String(), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "TYPE"))
	assert.Contains(t, out.String(), "license_plate")
}

func TestPrintJob(t *testing.T) {
	var out bytes.Buffer
	c := &cli{out: &out}
	job := &core.ImportJob{
		ID: "j1", ImportType: core.TypeVehicle, SourceFileName: "mezzi.csv", Status: core.StatusPartial,
		TotalRows: 4, ImportedRows: 2, UpdatedRows: 1, SkippedRows: 1, ErrorRows: 1,
	}
	require.NoError(t, c.printJob(job))
	assert.Contains(t, out.String(), "status:   partial (100%)")
	assert.Contains(t, out.String(), "4 total, 2 imported (1 updated), 1 skipped, 1 failed")
	assert.NotContains(t, out.String(), "error:")
}

func TestPrintPreview(t *testing.T) {
	var out bytes.Buffer
	c := &cli{out: &out}
	res := &core.PreviewResult{
		FileName:  "soci.csv",
		Encoding:  core.EncodingWindows1252,
		Delimiter: ";",
		TotalRows: 2,
		Mapping: core.ColumnMapping{
			{SourceHeader: "Matricola", TargetField: "registration_number", TargetTable: "members", Match: core.MatchExact},
		},
		Unmapped: []string{"Colore"},
		Missing:  []string{"last_name"},
		SampleRows: []core.SampleRow{
			{RowNumber: 2, Decision: &core.DuplicateDecision{Action: core.ActionInsert}},
		},
	}
	require.NoError(t, c.printPreview(res))

	s := out.String()
	assert.Contains(t, s, "encoding:  windows-1252")
	assert.Contains(t, s, "missing required fields: last_name")
	assert.Contains(t, s, "registration_number")
	assert.Contains(t, s, "insert")
}
