package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
)

// FieldKind selects the coercion applied to a sheet cell.
type FieldKind string

const (
	FieldText   FieldKind = "text"
	FieldDate   FieldKind = "date"   // normalized to YYYY-MM-DD
	FieldNumber FieldKind = "number" // currency symbols and separators stripped
	FieldMulti  FieldKind = "multi"  // delimiter-separated multi-select
)

// FieldSpec describes one reconciled column of an entity type.
type FieldSpec struct {
	Column string
	Kind   FieldKind
}

// nullLiteral is the sheet convention for explicitly clearing a stored
// value. A blank cell never overwrites; typing NULL does.
const nullLiteral = "NULL"

// DefaultSchemas returns the reconciled columns per entity type, matching
// the back-office sheet tabs.
func DefaultSchemas() map[domain.EntityType][]FieldSpec {
	return map[domain.EntityType][]FieldSpec{
		domain.EntitySellers: {
			{Column: "name", Kind: FieldText},
			{Column: "email", Kind: FieldText},
			{Column: "phone", Kind: FieldText},
			{Column: "property_address", Kind: FieldText},
			{Column: "asking_price", Kind: FieldNumber},
			{Column: "listed_date", Kind: FieldDate},
			{Column: "property_types", Kind: FieldMulti},
			{Column: "notes", Kind: FieldText},
		},
		domain.EntityBuyers: {
			{Column: "name", Kind: FieldText},
			{Column: "email", Kind: FieldText},
			{Column: "phone", Kind: FieldText},
			{Column: "budget_min", Kind: FieldNumber},
			{Column: "budget_max", Kind: FieldNumber},
			{Column: "preapproved_date", Kind: FieldDate},
			{Column: "target_areas", Kind: FieldMulti},
			{Column: "notes", Kind: FieldText},
		},
		domain.EntityListings: {
			{Column: "address", Kind: FieldText},
			{Column: "city", Kind: FieldText},
			{Column: "seller_number", Kind: FieldText},
			{Column: "list_price", Kind: FieldNumber},
			{Column: "listed_date", Kind: FieldDate},
			{Column: "status", Kind: FieldText},
			{Column: "features", Kind: FieldMulti},
			{Column: "notes", Kind: FieldText},
		},
	}
}

// Mapper converts source rows into store write models. The sheet is treated
// as authoritative only for the fields it actually populates: a blank cell
// never overwrites a previously stored value, which protects against a
// human clearing a cell by habit rather than intent.
type Mapper struct {
	schemas map[domain.EntityType][]FieldSpec
}

// NewMapper creates a Mapper. A nil schemas map uses DefaultSchemas.
func NewMapper(schemas map[domain.EntityType][]FieldSpec) *Mapper {
	if schemas == nil {
		schemas = DefaultSchemas()
	}
	return &Mapper{schemas: schemas}
}

// ToStoreRecord merges a source row over an existing record (nil for an
// addition) and recomputes the fingerprint from the merged result so that
// no-op detection on the next run is exact.
//
// Merge policy per field: populated cell overwrites; blank or absent cell
// keeps the stored value; the literal NULL clears it.
func (m *Mapper) ToStoreRecord(entityType domain.EntityType, row domain.SourceRow, existing *domain.StoreRecord) (*domain.StoreRecord, error) {
	schema, ok := m.schemas[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEntityType, entityType)
	}

	fields := make(map[string]string)
	if existing != nil {
		for k, v := range existing.Fields {
			fields[k] = v
		}
	}

	for _, spec := range schema {
		raw, present := row.Cell(spec.Column)
		trimmed := strings.TrimSpace(raw)
		if !present || trimmed == "" {
			continue
		}
		if trimmed == nullLiteral {
			delete(fields, spec.Column)
			continue
		}
		value, err := coerce(spec.Kind, trimmed)
		if err != nil {
			return nil, domain.NewMappingError(row.Key, spec.Column, err.Error())
		}
		fields[spec.Column] = value
	}

	return &domain.StoreRecord{
		EntityType:  entityType,
		Key:         row.Key,
		Fields:      fields,
		Fingerprint: domain.ComputeFingerprint(fields),
	}, nil
}

// RowFingerprint derives the diff candidate fingerprint from a row alone,
// over the same coerced field set an addition would produce. Cells that
// fail coercion contribute their raw value; the row will surface a
// MappingError when its phase actually processes it.
func (m *Mapper) RowFingerprint(entityType domain.EntityType, row domain.SourceRow) string {
	fields := make(map[string]string)
	for _, spec := range m.schemas[entityType] {
		raw, present := row.Cell(spec.Column)
		trimmed := strings.TrimSpace(raw)
		if !present || trimmed == "" || trimmed == nullLiteral {
			continue
		}
		value, err := coerce(spec.Kind, trimmed)
		if err != nil {
			value = trimmed
		}
		fields[spec.Column] = value
	}
	return domain.ComputeFingerprint(fields)
}

func coerce(kind FieldKind, value string) (string, error) {
	switch kind {
	case FieldDate:
		return coerceDate(value)
	case FieldNumber:
		return coerceNumber(value)
	case FieldMulti:
		return coerceMulti(value), nil
	default:
		return value, nil
	}
}

// dateLayouts covers the formats humans actually type into the sheet.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

func coerceDate(value string) (string, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unparseable date %q", value)
}

func coerceNumber(value string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '$', ',', ' ', '\u00a0':
			return -1
		}
		return r
	}, value)
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return "", fmt.Errorf("not a number: %q", value)
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// coerceMulti normalizes a multi-select cell: split on commas or
// semicolons, trim each item, drop empties, join canonically.
func coerceMulti(value string) string {
	items := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';'
	})
	var out []string
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, ", ")
}
