package ingest

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"demand-trend/internal/models"

	"github.com/shopspring/decimal"
)

// Result is the validated form of one extract.
type Result struct {
	Records  []models.CanonicalRecord
	RowsRead int
	// Excluded counts rows dropped for bad values; Warnings has one entry per
	// excluded row.
	Excluded int
	Warnings []InvalidRowError
	Variant  string
	Shadowed []string
}

// Validate normalizes the header row, enforces the canonical schema and
// coerces each row. A missing canonical column fails the whole table; a bad
// value only drops its row.
func Validate(t Table) (*Result, error) {
	n := Normalize(t.Header)
	if missing := n.Missing(); len(missing) > 0 {
		return nil, &MissingColumnError{Columns: missing}
	}

	res := &Result{
		Records:  make([]models.CanonicalRecord, 0, len(t.Rows)),
		Variant:  n.Variant,
		Shadowed: n.Shadowed,
	}
	for _, row := range t.Rows {
		if row.blank() {
			continue
		}
		res.RowsRead++
		rec, bad := coerceRow(row, n.Index, t.Serials)
		if bad != nil {
			res.Excluded++
			res.Warnings = append(res.Warnings, *bad)
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func coerceRow(row Row, idx map[string]int, serials bool) (models.CanonicalRecord, *InvalidRowError) {
	invalid := func(col, val, reason string) *InvalidRowError {
		return &InvalidRowError{Line: row.Line, Column: col, Value: val, Reason: reason}
	}

	rawDate := row.cell(idx[ColShipDate])
	shipDate, err := ParseCellDate(rawDate, serials)
	if err != nil {
		return models.CanonicalRecord{}, invalid(ColShipDate, rawDate, err.Error())
	}
	customer := strings.TrimSpace(row.cell(idx[ColCustomerCode]))
	if customer == "" {
		return models.CanonicalRecord{}, invalid(ColCustomerCode, "", "empty customer code")
	}
	part := strings.TrimSpace(row.cell(idx[ColCustomerPartNo]))
	if part == "" {
		return models.CanonicalRecord{}, invalid(ColCustomerPartNo, "", "empty part number")
	}
	rawQty := row.cell(idx[ColOrderQty])
	qty, err := ParseQuantity(rawQty)
	if err != nil {
		return models.CanonicalRecord{}, invalid(ColOrderQty, rawQty, err.Error())
	}
	return models.CanonicalRecord{
		ShipDate:       shipDate,
		CustomerCode:   customer,
		CustomerPartNo: part,
		OrderQty:       qty,
	}, nil
}

var dateLayouts = []string{
	"2006-1-2",
	"2006-1-2 15:04:05",
	"2006-1-2 15:04",
	"2006-1-2T15:04:05",
	time.RFC3339Nano,
	"2006/1/2",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"1/2/2006",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/06",
	"1-2-2006",
	"2-Jan-2006",
	"2-Jan-06",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"20060102",
}

var (
	errBadDate  = errors.New("unrecognised date")
	errQtyRange = errors.New("quantity out of range")
)

const maxQuantityLen = 64

// excelEpoch is day zero of the 1900 date system as Excel counts it
// (including its phantom 1900-02-29).
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseDate accepts the textual date spellings seen in extracts and returns
// the calendar date as UTC midnight. Slash dates are read month first. Bare
// numbers are not dates here.
func ParseDate(s string) (time.Time, error) {
	return ParseCellDate(s, false)
}

// ParseCellDate is ParseDate plus, when serials is set, spreadsheet day
// numbers. Only workbook cells carry those.
func ParseCellDate(s string, serials bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.Day(t), nil
		}
	}
	if serials {
		if t, ok := parseExcelSerial(s); ok {
			return t, nil
		}
	}
	return time.Time{}, errBadDate
}

// parseExcelSerial reads spreadsheet day numbers such as 45292 or 45292.75.
func parseExcelSerial(s string) (time.Time, bool) {
	whole := s
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole = s[:i]
	}
	if len(whole) == 0 || len(whole) > 5 {
		return time.Time{}, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 1 {
		return time.Time{}, false
	}
	return excelEpoch.AddDate(0, 0, int(math.Floor(f))), true
}

// ParseQuantity coerces an order quantity to a non-negative whole number.
// Thousands separators are tolerated; fractions and negatives are rejected.
func ParseQuantity(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, errors.New("empty quantity")
	}
	if len(s) > maxQuantityLen {
		return 0, errQtyRange
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.New("not a number")
	}
	if d.IsNegative() {
		return 0, errors.New("negative quantity")
	}
	if d.IsZero() {
		return 0, nil
	}
	// BigInt and IsInteger scale by 10^|exponent|; bound it first.
	if exp := int(d.Exponent()); exp > 18 || exp+d.NumDigits() > 19 {
		return 0, errQtyRange
	}
	if !d.IsInteger() {
		return 0, errors.New("fractional quantity")
	}
	bi := d.BigInt()
	if !bi.IsInt64() {
		return 0, errQtyRange
	}
	return bi.Int64(), nil
}
