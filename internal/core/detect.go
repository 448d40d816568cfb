package core

// detect.go sniffs the character encoding and field delimiter of an upload
// before any parsing. Only a bounded prefix is inspected.

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding is one of the candidate character sets.
type Encoding string

const (
	EncodingUTF8        Encoding = "utf-8"
	EncodingUTF8BOM     Encoding = "utf-8-bom"
	EncodingWindows1252 Encoding = "windows-1252"
	EncodingLatin1      Encoding = "iso-8859-1"
)

const (
	// DetectMaxLines bounds how many lines the detector inspects.
	DetectMaxLines = 50

	// DetectMaxBytes bounds how many bytes the detector inspects.
	DetectMaxBytes = 256 << 10

	// MinPrintableRatio is the share of printable runes a candidate encoding
	// must produce to be accepted.
	MinPrintableRatio = 0.95
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Delimiters are the candidate field separators, in tie-break order.
var Delimiters = []rune{';', ','}

// Detection is the detector's verdict.
type Detection struct {
	Encoding  Encoding
	Delimiter rune
}

// DelimiterString returns the delimiter as a one-character string.
func (d Detection) DelimiterString() string {
	if d.Delimiter == 0 {
		return ""
	}
	return string(d.Delimiter)
}

// Decoder returns the x/text decoder that turns bytes in enc into UTF-8.
// UTF-8 decoders replace invalid sequences with U+FFFD; the BOM variant
// also strips the byte order mark.
func Decoder(enc Encoding) *encoding.Decoder {
	switch enc {
	case EncodingUTF8BOM:
		return xunicode.UTF8BOM.NewDecoder()
	case EncodingWindows1252:
		return charmap.Windows1252.NewDecoder()
	case EncodingLatin1:
		return charmap.ISO8859_1.NewDecoder()
	default:
		return xunicode.UTF8.NewDecoder()
	}
}

// Detect returns the encoding and delimiter of data, or *UnreadableFileError.
// It is a pure function of the input bytes.
func Detect(data []byte) (Detection, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Detection{}, &UnreadableFileError{Reason: "empty file"}
	}

	enc := EncodingUTF8
	body := data
	if bytes.HasPrefix(data, utf8BOM) {
		enc = EncodingUTF8BOM
		body = data[len(utf8BOM):]
	}

	sample := samplePrefix(body)
	validUTF8 := utf8.Valid(sample[:len(sample)-incompleteTrailingBytes(sample)])

	switch {
	case enc == EncodingUTF8BOM && !validUTF8:
		return Detection{}, &UnreadableFileError{Reason: "invalid UTF-8 after byte order mark"}
	case !validUTF8:
		enc = latin1Candidate(sample)
	}

	text, _, err := transform.Bytes(Decoder(enc), sample)
	if err != nil {
		return Detection{}, &UnreadableFileError{Reason: fmt.Sprintf("decode as %s: %v", enc, err)}
	}
	if ratio := printableRatio(string(text)); ratio < MinPrintableRatio {
		return Detection{}, &UnreadableFileError{
			Reason: fmt.Sprintf("no candidate encoding matched (printable ratio %.2f)", ratio),
		}
	}

	delim, err := detectDelimiter(string(text))
	if err != nil {
		return Detection{}, err
	}

	return Detection{Encoding: enc, Delimiter: delim}, nil
}

// samplePrefix returns at most DetectMaxLines lines and DetectMaxBytes bytes.
func samplePrefix(data []byte) []byte {
	if len(data) > DetectMaxBytes {
		data = data[:DetectMaxBytes]
		if i := bytes.LastIndexByte(data, '\n'); i > 0 {
			data = data[:i+1]
		}
	}
	lines := 0
	for i, b := range data {
		if b == '\n' {
			lines++
			if lines == DetectMaxLines {
				return data[:i+1]
			}
		}
	}
	return data
}

// latin1Candidate picks Windows-1252 when the sample uses bytes 0x80-0x9F
// that Windows-1252 maps to printable characters, ISO-8859-1 otherwise.
func latin1Candidate(sample []byte) Encoding {
	for _, b := range sample {
		if b >= 0x80 && b <= 0x9F {
			switch b {
			case 0x81, 0x8D, 0x8F, 0x90, 0x9D:
				continue
			}
			return EncodingWindows1252
		}
	}
	return EncodingLatin1
}

// printableRatio returns the share of runes that are not control characters
// (tab, CR and LF excluded) or replacement characters.
func printableRatio(s string) float64 {
	total, bad := 0, 0
	for _, r := range s {
		total++
		switch {
		case r == '\t' || r == '\r' || r == '\n':
		case r == utf8.RuneError || unicode.IsControl(r):
			bad++
		}
	}
	if total == 0 {
		return 0
	}
	return 1 - float64(bad)/float64(total)
}

// detectDelimiter scores each candidate by how many lines carry the same
// number of separators as the header line.
func detectDelimiter(text string) (rune, error) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == DetectMaxLines {
			break
		}
	}
	if len(lines) == 0 {
		return 0, &UnreadableFileError{Reason: "empty file"}
	}

	var (
		best       rune
		bestScore  = -1
		bestHeader = 0
	)
	for _, cand := range Delimiters {
		header := countOutsideQuotes(lines[0], cand)
		if header == 0 {
			continue
		}
		score := 0
		for _, line := range lines {
			if countOutsideQuotes(line, cand) == header {
				score++
			}
		}
		if score > bestScore || (score == bestScore && header > bestHeader) {
			best, bestScore, bestHeader = cand, score, header
		}
	}

	if best == 0 {
		return 0, &UnreadableFileError{Reason: "delimiter undetectable: header has no comma or semicolon"}
	}
	return best, nil
}

func countOutsideQuotes(line string, sep rune) int {
	n := 0
	inQuote := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == sep && !inQuote:
			n++
		}
	}
	return n
}

// incompleteTrailingBytes returns the number of bytes at the end of data
// that could be the start of an incomplete multi-byte UTF-8 sequence.
func incompleteTrailingBytes(data []byte) int {
	for i := 1; i <= 3 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			if i < runeLen(b) {
				return i
			}
			return 0
		}
		// Anything but a continuation byte ends the search.
		if b&0xC0 != 0x80 {
			return 0
		}
	}
	return 0
}

// runeLen returns the expected length of a UTF-8 sequence starting with b.
func runeLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	}
	return 4
}
