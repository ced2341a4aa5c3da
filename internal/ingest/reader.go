package ingest

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"demand-trend/internal/models"

	"github.com/xuri/excelize/v2"
)

// Table is a raw extract: a header row and the data rows under it.
type Table struct {
	Source string
	Header []string
	Rows   []Row
	// Serials marks cells read raw from a workbook, where dates are day numbers.
	Serials bool
}

// Row is one data row with its 1-based source line.
type Row struct {
	Line  int
	Cells []string
}

func (r Row) cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

func (r Row) blank() bool {
	for _, c := range r.Cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

var zipMagic = []byte("PK\x03\x04")

// Parse reads an extract held in memory. Workbooks are recognised by
// extension or by their zip signature; anything else is delimited text.
// sheet selects a worksheet and is ignored for text input.
func Parse(data []byte, source, sheet string) (Table, error) {
	ext := strings.ToLower(filepath.Ext(source))
	if ext == ".xlsx" || ext == ".xlsm" || bytes.HasPrefix(data, zipMagic) {
		return ReadXLSX(bytes.NewReader(data), source, sheet)
	}
	return ReadCSV(bytes.NewReader(data), source)
}

// ReadCSV reads delimited text. The delimiter (comma, semicolon, tab or
// pipe) is taken from whichever occurs most in the header line.
func ReadCSV(r io.Reader, source string) (Table, error) {
	br := bufio.NewReader(r)
	first, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return Table{}, &MalformedInputError{Source: source, Err: err}
	}
	if len(bytes.TrimSpace(first)) == 0 {
		return Table{}, &MalformedInputError{Source: source, Err: errors.New("empty file")}
	}

	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(first)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	t := Table{Source: source}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, &MalformedInputError{Source: source, Err: err}
		}
		line, _ := cr.FieldPos(0)
		if t.Header == nil {
			t.Header = record
			continue
		}
		t.Rows = append(t.Rows, Row{Line: line, Cells: record})
	}
	if t.Header == nil {
		return Table{}, &MalformedInputError{Source: source, Err: errors.New("no header row")}
	}
	return t, nil
}

func sniffDelimiter(head []byte) rune {
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	best, bestCount := ',', bytes.Count(head, []byte{','})
	for _, c := range []rune{';', '\t', '|'} {
		if n := bytes.Count(head, []byte(string(c))); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

// ReadXLSX reads one worksheet of a workbook, the first one unless sheet is
// set. Cells are read raw so dates arrive as serial day numbers.
func ReadXLSX(r io.Reader, source, sheet string) (Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Table{}, &MalformedInputError{Source: source, Err: err}
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return Table{}, &MalformedInputError{Source: source, Err: errors.New("workbook has no sheets")}
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return Table{}, &MalformedInputError{Source: source, Err: fmt.Errorf("sheet %q: %w", sheet, err)}
	}

	t := Table{Source: source, Serials: true}
	for i, cells := range rows {
		if t.Header == nil {
			if (Row{Cells: cells}).blank() {
				continue
			}
			t.Header = cells
			continue
		}
		t.Rows = append(t.Rows, Row{Line: i + 1, Cells: cells})
	}
	if t.Header == nil {
		return Table{}, &MalformedInputError{Source: source, Err: errors.New("no header row")}
	}
	return t, nil
}

// IdempotencyKey identifies an upload by its content and nominal date.
func IdempotencyKey(data []byte, nominal time.Time) string {
	h := sha256.New()
	h.Write(data)
	h.Write([]byte{0})
	h.Write([]byte(models.Day(nominal).Format(models.DateLayout)))
	return hex.EncodeToString(h.Sum(nil))
}
