package core

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/easyvol/csvimport/internal/logging"
)

// PreviewRequest describes a read-only analysis of an upload.
type PreviewRequest struct {
	FileName   string
	Data       io.Reader
	ImportType ImportType
	Overrides  map[string]string
}

// SampleRow is one previewed data row: its raw cells in header order and
// either the bundle it would produce or the errors that reject it.
type SampleRow struct {
	RowNumber int                `json:"rowNumber"`
	Cells     []string           `json:"cells"`
	Bundle    *EntityBundle      `json:"bundle,omitempty"`
	Decision  *DuplicateDecision `json:"decision,omitempty"`
	Errors    []FieldError       `json:"errors,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// PreviewResult is everything an operator needs to confirm a run.
type PreviewResult struct {
	ImportType       ImportType    `json:"importType"`
	FileName         string        `json:"fileName"`
	Encoding         Encoding      `json:"encoding"`
	Delimiter        string        `json:"delimiter"`
	Headers          []string      `json:"headers"`
	Mapping          ColumnMapping `json:"mapping"`
	Unmapped         []string      `json:"unmapped"`
	Missing          []string      `json:"missing"`
	TotalRows        int           `json:"totalRows"`
	SampleRows       []SampleRow   `json:"sampleRows"`
	ProcessingTimeMs int64         `json:"processingTimeMs"`
}

// CanRun reports whether the mapping satisfies every required field.
func (p *PreviewResult) CanRun() bool {
	return len(p.Missing) == 0
}

// Preview analyzes an upload without writing anything. Sample rows are
// transformed and, when a store is available, tagged with the duplicate
// decision inside a transaction that is always rolled back.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	startTime := time.Now()

	def, err := Lookup(req.ImportType)
	if err != nil {
		return nil, err
	}

	data, err := readSource(ctx, req.Data, s.opts.MaxFileSize, s.opts.ReadTimeout)
	if err != nil {
		return nil, err
	}
	det, err := Detect(data)
	if err != nil {
		return nil, err
	}

	parser := NewRowParser(data, det, ParserOptions{MaxRows: s.opts.MaxRows})
	headers, err := parser.Header()
	if err != nil {
		return nil, err
	}
	mapping, err := ResolveMapping(headers, def, req.Overrides)
	if err != nil {
		return nil, err
	}
	total, err := parser.Count()
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{
		ImportType: def.Type,
		FileName:   req.FileName,
		Encoding:   det.Encoding,
		Delimiter:  det.DelimiterString(),
		Headers:    headers,
		Mapping:    mapping,
		Unmapped:   mapping.Unmapped(headers),
		Missing:    mapping.Missing(def),
		TotalRows:  total,
	}

	tr := NewTransformer(def, mapping, TransformOptions{Now: s.opts.Now})
	resolver := NewDuplicateResolver(def)
	finder, release := s.previewFinder(ctx)
	defer release()

	it := parser.Rows()
	for len(result.SampleRows) < s.opts.PreviewRows && it.Next() {
		row := it.Row()
		sample := SampleRow{RowNumber: row.Number, Cells: row.Cells}

		bundle, err := tr.Transform(row)
		var te *TransformError
		switch {
		case errors.As(err, &te):
			sample.Errors = te.Fields
		case err != nil:
			sample.Error = err.Error()
		default:
			sample.Bundle = bundle
			if finder != nil {
				d, err := resolver.Resolve(ctx, finder, bundle, false)
				if err == nil {
					sample.Decision = &d
				}
			}
		}
		result.SampleRows = append(result.SampleRows, sample)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	result.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	logging.FromContext(ctx).Info("import preview",
		"import_type", def.Type,
		"file", req.FileName,
		"encoding", det.Encoding,
		"delimiter", det.DelimiterString(),
		"total_rows", total,
		"missing", len(result.Missing),
	)
	return result, nil
}

// previewFinder opens a throwaway transaction for duplicate lookups.
// Returns a nil finder when the store is unavailable.
func (s *Service) previewFinder(ctx context.Context) (KeyFinder, func()) {
	if s.store == nil {
		return nil, func() {}
	}
	tx, err := s.store.Begin(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("preview without duplicate check", "error", err)
		return nil, func() {}
	}
	return tx, func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }
}
