package core

// parse.go turns detected bytes into rows of trimmed cells aligned to the
// header. The row sequence is lazy and can be restarted from the beginning
// by calling Rows again.
//
// A record whose quoting fails after spanning several physical lines is
// reported as a parse error on its first line only; reading resumes on the
// line after it so an unterminated quote cannot swallow the rest of the file.

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"golang.org/x/text/transform"
)

// ParserOptions bounds the parser.
type ParserOptions struct {
	// MaxRows is the maximum number of data rows (0 = unlimited).
	MaxRows int
}

// RawRow is one data record. Err is set when the record itself is malformed;
// Cells is then nil.
type RawRow struct {
	Number int // Source line where the record starts (header is line 1)
	Cells  []string
	Err    error
}

// Cell returns the cell at i, or "" when out of range.
func (r RawRow) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

// RowParser reads rows from an in-memory file.
type RowParser struct {
	data []byte
	det  Detection
	opts ParserOptions

	text  string // decoded data, filled on first use
	lines []int  // byte offset in text of each physical line
	dErr  error
}

// NewRowParser creates a parser for data as detected by Detect.
func NewRowParser(data []byte, det Detection, opts ParserOptions) *RowParser {
	return &RowParser{data: data, det: det, opts: opts}
}

func (p *RowParser) decode() error {
	if p.lines != nil || p.dErr != nil {
		return p.dErr
	}
	text, _, err := transform.Bytes(Decoder(p.det.Encoding), p.data)
	if err != nil {
		p.dErr = &UnreadableFileError{Reason: "decode: " + err.Error()}
		return p.dErr
	}
	p.text = string(text)
	p.lines = []int{0}
	for i := 0; i < len(p.text); i++ {
		if p.text[i] == '\n' {
			p.lines = append(p.lines, i+1)
		}
	}
	return nil
}

// newReader returns a csv reader starting at physical line (1-based).
func (p *RowParser) newReader(line int) *csv.Reader {
	offset := len(p.text)
	if line-1 < len(p.lines) {
		offset = p.lines[line-1]
	}
	r := csv.NewReader(strings.NewReader(p.text[offset:]))
	r.Comma = p.det.Delimiter
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	return r
}

// Header returns the cleaned header row.
func (p *RowParser) Header() ([]string, error) {
	if err := p.decode(); err != nil {
		return nil, err
	}
	header, _, err := readHeader(p.newReader(1))
	return header, err
}

// Rows starts a new pass over the data rows.
func (p *RowParser) Rows() *RowIterator {
	it := &RowIterator{p: p, max: p.opts.MaxRows}
	if it.err = p.decode(); it.err != nil {
		return it
	}
	it.r = p.newReader(1)
	header, _, err := readHeader(it.r)
	it.width = len(header)
	it.err = err
	return it
}

// Count returns the number of data rows, including malformed ones.
// Fails with *RowLimitExceededError past MaxRows.
func (p *RowParser) Count() (int, error) {
	it := p.Rows()
	n := 0
	for it.Next() {
		n++
	}
	return n, it.Err()
}

func readHeader(r *csv.Reader) ([]string, int, error) {
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil, 0, &UnreadableFileError{Reason: "empty file"}
		}
		if err != nil {
			return nil, 0, &UnreadableFileError{Reason: "header row: " + err.Error()}
		}
		cells := cleanCells(rec)
		if isEmptyRow(cells) {
			continue
		}
		line, _ := r.FieldPos(0)
		return cells, line, nil
	}
}

// RowIterator walks data rows. Usage:
//
//	it := parser.Rows()
//	for it.Next() {
//	    row := it.Row()
//	}
//	if err := it.Err(); err != nil { ... }
type RowIterator struct {
	p     *RowParser
	r     *csv.Reader
	base  int // physical lines before the current reader's input
	width int
	max   int
	count int
	row   RawRow
	err   error
}

// Next advances to the next data row. Fully empty rows are skipped.
func (it *RowIterator) Next() bool {
	if it.err != nil {
		return false
	}

	for {
		rec, err := it.r.Read()
		if errors.Is(err, io.EOF) {
			return false
		}

		var row RawRow
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				// Reader failure: nothing after this point is trustworthy.
				it.err = &UnreadableFileError{Reason: err.Error()}
				return false
			}
			start := it.base + pe.StartLine
			row = RawRow{Number: start, Err: &RowParseError{Line: start, Err: pe.Err}}
			if pe.Line > pe.StartLine {
				it.r = it.p.newReader(start + 1)
				it.base = start
			}
		} else {
			cells := cleanCells(rec)
			if isEmptyRow(cells) {
				continue
			}
			line, _ := it.r.FieldPos(0)
			row = RawRow{Number: it.base + line, Cells: align(cells, it.width)}
		}

		it.count++
		if it.max > 0 && it.count > it.max {
			it.err = &RowLimitExceededError{Limit: it.max}
			return false
		}
		it.row = row
		return true
	}
}

// Row returns the current row.
func (it *RowIterator) Row() RawRow { return it.row }

// Err returns the file-level error that stopped iteration, if any.
func (it *RowIterator) Err() error { return it.err }

// align pads ragged rows with empty cells and drops cells past width.
func align(cells []string, width int) []string {
	if len(cells) == width {
		return cells
	}
	out := make([]string, width)
	copy(out, cells)
	return out
}

func cleanCells(rec []string) []string {
	out := make([]string, len(rec))
	for i, c := range rec {
		out[i] = CleanCell(c)
	}
	return out
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
