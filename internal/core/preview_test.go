package core_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyvol/csvimport/internal/core"
	"github.com/easyvol/csvimport/internal/store/memstore"
)

func preview(t *testing.T, svc *core.Service, typ core.ImportType, data string, overrides map[string]string) (*core.PreviewResult, error) {
	t.Helper()
	return svc.Preview(context.Background(), core.PreviewRequest{
		FileName:   "upload.csv",
		Data:       strings.NewReader(data),
		ImportType: typ,
		Overrides:  overrides,
	})
}

func TestPreview_MembersFile(t *testing.T) {
	store := memstore.New()
	store.Seed("members", map[string]any{"id": "m-1", "registration_number": "M002"})
	svc := newService(store, core.Options{})

	res, err := preview(t, svc, core.TypeAdultMember, membersCSV+"M004;Neri;Anna;;;;\n", nil)
	require.NoError(t, err)

	assert.Equal(t, core.EncodingUTF8, res.Encoding)
	assert.Equal(t, ";", res.Delimiter)
	assert.Equal(t, 4, res.TotalRows)
	assert.True(t, res.CanRun())
	assert.Empty(t, res.Unmapped)
	assert.Len(t, res.Mapping, 7)

	require.Len(t, res.SampleRows, 4)

	first := res.SampleRows[0]
	assert.Equal(t, 2, first.RowNumber)
	assert.Equal(t, "Rossi", first.Cells[1])
	assert.Len(t, first.Cells, len(res.Headers))
	require.NotNil(t, first.Bundle)
	assert.Len(t, first.Bundle.Contacts, 1)
	require.NotNil(t, first.Decision)
	assert.Equal(t, core.ActionInsert, first.Decision.Action)

	dup := res.SampleRows[1]
	require.NotNil(t, dup.Decision)
	assert.Equal(t, core.ActionConflict, dup.Decision.Action)
	assert.Equal(t, "m-1", dup.Decision.ExistingID)

	bad := res.SampleRows[2]
	assert.Nil(t, bad.Bundle)
	require.Len(t, bad.Errors, 1)
	assert.Equal(t, "tax_code", bad.Errors[0].Field)

	assert.Equal(t, 1, store.Count("members"), "preview never writes")
	jobs, err := svc.ListJobs(context.Background(), core.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs, "preview creates no job")
}

func TestPreview_SampleLimit(t *testing.T) {
	var b strings.Builder
	b.WriteString("Targa\n")
	for i := range 30 {
		b.WriteString("AB")
		b.WriteString(strings.Repeat("1", 3))
		b.WriteByte(byte('A' + i%26))
		b.WriteString("Z\n")
	}
	svc := newService(memstore.New(), core.Options{PreviewRows: 5})

	res, err := preview(t, svc, core.TypeVehicle, b.String(), nil)
	require.NoError(t, err)
	assert.Equal(t, 30, res.TotalRows)
	assert.Len(t, res.SampleRows, 5)
}

func TestPreview_ReportsMissingFields(t *testing.T) {
	svc := newService(memstore.New(), core.Options{})

	res, err := preview(t, svc, core.TypeAdultMember, "Cognome;Nome;Colore preferito\nRossi;Mario;blu\n", nil)
	require.NoError(t, err, "missing mappings are reported, not returned")
	assert.False(t, res.CanRun())
	assert.Equal(t, []string{"registration_number"}, res.Missing)
	assert.Equal(t, []string{"Colore preferito"}, res.Unmapped)

	t.Run("override fixes the mapping", func(t *testing.T) {
		res, err := preview(t, svc, core.TypeAdultMember, "Cognome;Nome;Tessera n\nRossi;Mario;7\n",
			map[string]string{"Tessera n": "registration_number"})
		require.NoError(t, err)
		assert.True(t, res.CanRun())
	})
}

func TestPreview_FileLevelErrors(t *testing.T) {
	svc := newService(memstore.New(), core.Options{})

	_, err := preview(t, svc, core.TypeVehicle, "", nil)
	var ue *core.UnreadableFileError
	assert.ErrorAs(t, err, &ue)

	_, err = preview(t, svc, core.TypeVehicle, vehiclesCSV, map[string]string{"Colonna": "license_plate"})
	var ce *core.UnknownColumnError
	assert.ErrorAs(t, err, &ce)

	_, err = preview(t, svc, "boats", vehiclesCSV, nil)
	var te *core.UnknownImportTypeError
	assert.ErrorAs(t, err, &te)
}

func TestPreview_WithoutStore(t *testing.T) {
	svc := core.NewService(nil, memstore.New(), nil, core.Options{})

	res, err := preview(t, svc, core.TypeVehicle, vehiclesCSV, nil)
	require.NoError(t, err)
	require.Len(t, res.SampleRows, 2)
	assert.Nil(t, res.SampleRows[0].Decision)
	assert.NotNil(t, res.SampleRows[0].Bundle)
}

func TestPreview_DuplicateHeadersKeepEveryCell(t *testing.T) {
	svc := newService(memstore.New(), core.Options{})

	res, err := preview(t, svc, core.TypeVehicle, "Targa;Extra;Extra\nAB123CD;prima;seconda\n", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Targa", "Extra", "Extra"}, res.Headers)
	require.Len(t, res.SampleRows, 1)
	assert.Equal(t, []string{"AB123CD", "prima", "seconda"}, res.SampleRows[0].Cells)
}
