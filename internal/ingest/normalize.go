package ingest

import "strings"

// Canonical column names.
const (
	ColShipDate       = "ship_date"
	ColCustomerCode   = "customer_code"
	ColCustomerPartNo = "customer_part_no"
	ColOrderQty       = "order_qty"
)

// RequiredColumns is the canonical schema, in reporting order.
var RequiredColumns = []string{ColShipDate, ColCustomerCode, ColCustomerPartNo, ColOrderQty}

// Naming conventions seen in the extracts.
const (
	VariantCanonical   = "canonical"
	VariantStandard    = "standard"
	VariantEDI         = "edi"
	VariantTimestamped = "timestamped"
	VariantMixed       = "mixed"
	VariantUnknown     = "unknown"
)

type alias struct {
	column  string
	variant string
}

// aliases is keyed by the cleaned header (see CleanHeader).
var aliases = map[string]alias{
	"ship_date":        {ColShipDate, VariantCanonical},
	"customer_code":    {ColCustomerCode, VariantCanonical},
	"customer_part_no": {ColCustomerPartNo, VariantCanonical},
	"order_qty":        {ColOrderQty, VariantCanonical},

	"ship date":        {ColShipDate, VariantStandard},
	"customer code":    {ColCustomerCode, VariantStandard},
	"customer part no": {ColCustomerPartNo, VariantStandard},
	"order quantity":   {ColOrderQty, VariantStandard},

	"customer":     {ColCustomerCode, VariantEDI},
	"edi quantity": {ColOrderQty, VariantEDI},

	"ship date/time": {ColShipDate, VariantTimestamped},
}

// Normalized is a header row rewritten to canonical names.
type Normalized struct {
	// Headers has the same length and order as the input; recognised columns
	// carry their canonical name, the rest their cleaned spelling.
	Headers []string
	// Index maps each recognised canonical column to its position.
	Index map[string]int
	// Shadowed lists original headers that aliased an already-mapped column.
	Shadowed []string
	Variant  string
}

// CleanHeader trims, collapses internal whitespace (newlines included) to a
// single space and lowercases.
func CleanHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

// Normalize maps a raw header row onto the canonical schema. It never fails;
// missing columns are the validator's business.
func Normalize(headers []string) Normalized {
	n := Normalized{
		Headers: make([]string, len(headers)),
		Index:   make(map[string]int, len(RequiredColumns)),
	}
	variants := make(map[string]struct{})
	for i, raw := range headers {
		clean := CleanHeader(raw)
		a, ok := aliases[clean]
		if !ok {
			n.Headers[i] = clean
			continue
		}
		if _, taken := n.Index[a.column]; taken {
			n.Headers[i] = clean
			n.Shadowed = append(n.Shadowed, raw)
			continue
		}
		n.Headers[i] = a.column
		n.Index[a.column] = i
		variants[a.variant] = struct{}{}
	}
	n.Variant = pickVariant(variants)
	return n
}

// Missing returns the canonical columns the header row lacks.
func (n Normalized) Missing() []string {
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := n.Index[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

func pickVariant(seen map[string]struct{}) string {
	switch len(seen) {
	case 0:
		return VariantUnknown
	case 1:
		for v := range seen {
			return v
		}
	}
	// EDI and timestamped extracts still carry standard-named columns
	delete(seen, VariantStandard)
	if len(seen) == 1 {
		for v := range seen {
			return v
		}
	}
	return VariantMixed
}
