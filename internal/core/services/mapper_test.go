package services

import (
	"errors"
	"testing"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
)

func sellerRow(key string, columns map[string]string) domain.SourceRow {
	return domain.SourceRow{Key: key, Columns: columns, RowIndex: 2}
}

func TestToStoreRecord_Addition(t *testing.T) {
	m := NewMapper(nil)
	row := sellerRow("S-100", map[string]string{
		"name":           "Ada Lovelace",
		"asking_price":   "$450,000",
		"listed_date":    "3/14/2024",
		"property_types": "condo; townhouse",
	})

	rec, err := m.ToStoreRecord(domain.EntitySellers, row, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{
		"name":           "Ada Lovelace",
		"asking_price":   "450000",
		"listed_date":    "2024-03-14",
		"property_types": "condo, townhouse",
	}
	for k, v := range want {
		if rec.Fields[k] != v {
			t.Errorf("field %s = %q, want %q", k, rec.Fields[k], v)
		}
	}
	if rec.Fingerprint != domain.ComputeFingerprint(rec.Fields) {
		t.Error("fingerprint must be computed from the merged fields")
	}
}

func TestToStoreRecord_BlankDoesNotOverwrite(t *testing.T) {
	m := NewMapper(nil)
	existing := &domain.StoreRecord{
		EntityType: domain.EntitySellers,
		Key:        "S-100",
		Fields: map[string]string{
			"name":           "Ada Lovelace",
			"email":          "ada@example.com",
			"asking_price":   "450000",
			"listed_date":    "2024-03-14",
			"property_types": "condo, townhouse",
		},
	}

	// Every field category blanked or absent: text blank, number blank,
	// date absent, multi blank.
	row := sellerRow("S-100", map[string]string{
		"name":           "Ada King",
		"email":          "",
		"asking_price":   "  ",
		"property_types": "",
	})

	rec, err := m.ToStoreRecord(domain.EntitySellers, row, existing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Fields["name"] != "Ada King" {
		t.Errorf("populated cell must overwrite: name = %q", rec.Fields["name"])
	}
	kept := map[string]string{
		"email":          "ada@example.com",
		"asking_price":   "450000",
		"listed_date":    "2024-03-14",
		"property_types": "condo, townhouse",
	}
	for k, v := range kept {
		if rec.Fields[k] != v {
			t.Errorf("blank cell overwrote %s: got %q, want %q", k, rec.Fields[k], v)
		}
	}
}

func TestToStoreRecord_NullLiteralClears(t *testing.T) {
	m := NewMapper(nil)
	existing := &domain.StoreRecord{
		EntityType: domain.EntitySellers,
		Key:        "S-100",
		Fields:     map[string]string{"notes": "call after 5pm"},
	}
	row := sellerRow("S-100", map[string]string{"notes": "NULL"})

	rec, err := m.ToStoreRecord(domain.EntitySellers, row, existing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := rec.Fields["notes"]; ok {
		t.Error("explicit NULL should clear the stored value")
	}
}

func TestToStoreRecord_MappingErrors(t *testing.T) {
	m := NewMapper(nil)
	tests := []struct {
		name  string
		cols  map[string]string
		field string
	}{
		{"bad date", map[string]string{"listed_date": "next tuesday"}, "listed_date"},
		{"bad number", map[string]string{"asking_price": "four hundred"}, "asking_price"},
	}

	for _, tt := range tests {
		_, err := m.ToStoreRecord(domain.EntitySellers, sellerRow("S-1", tt.cols), nil)
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		var mapErr *domain.MappingError
		if !errors.As(err, &mapErr) {
			t.Errorf("%s: expected MappingError, got %T", tt.name, err)
			continue
		}
		if mapErr.Field != tt.field || mapErr.Key != "S-1" {
			t.Errorf("%s: error = %+v", tt.name, mapErr)
		}
	}
}

func TestToStoreRecord_UnknownEntity(t *testing.T) {
	m := NewMapper(nil)
	_, err := m.ToStoreRecord("agents", sellerRow("A-1", nil), nil)
	if !errors.Is(err, domain.ErrUnknownEntityType) {
		t.Fatalf("expected ErrUnknownEntityType, got %v", err)
	}
}

func TestToStoreRecord_IdempotentFingerprint(t *testing.T) {
	// Mapping the same row twice, the second time against the record the
	// first produced, must not change the fingerprint.
	m := NewMapper(nil)
	row := sellerRow("S-100", map[string]string{
		"name":         "Ada Lovelace",
		"asking_price": "450,000",
	})

	first, err := m.ToStoreRecord(domain.EntitySellers, row, nil)
	if err != nil {
		t.Fatalf("first mapping: %v", err)
	}
	second, err := m.ToStoreRecord(domain.EntitySellers, row, first)
	if err != nil {
		t.Fatalf("second mapping: %v", err)
	}
	if first.Fingerprint != second.Fingerprint {
		t.Error("re-mapping an unchanged row must be a fingerprint no-op")
	}
}

func TestRowFingerprint_MatchesAdditionFingerprint(t *testing.T) {
	// The diff candidate fingerprint and the stored fingerprint of a fresh
	// addition must agree, or every add would re-classify as an update on
	// the next run.
	m := NewMapper(nil)
	row := sellerRow("S-100", map[string]string{
		"name":        "Ada Lovelace",
		"listed_date": "2024-03-14",
	})

	rec, err := m.ToStoreRecord(domain.EntitySellers, row, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.RowFingerprint(domain.EntitySellers, row) != rec.Fingerprint {
		t.Error("RowFingerprint disagrees with addition fingerprint")
	}
}

func TestRowFingerprint_IgnoresBlankAndNull(t *testing.T) {
	m := NewMapper(nil)
	a := sellerRow("S-1", map[string]string{"name": "Ada"})
	b := sellerRow("S-1", map[string]string{"name": "Ada", "email": "", "notes": "NULL"})

	if m.RowFingerprint(domain.EntitySellers, a) != m.RowFingerprint(domain.EntitySellers, b) {
		t.Error("blank and NULL-marker cells must not perturb the candidate fingerprint")
	}
}

func TestCoerceDate_Layouts(t *testing.T) {
	tests := []struct{ in, want string }{
		{"2024-03-14", "2024-03-14"},
		{"03/14/2024", "2024-03-14"},
		{"3/14/2024", "2024-03-14"},
		{"Mar 14, 2024", "2024-03-14"},
		{"March 14, 2024", "2024-03-14"},
		{"14 Mar 2024", "2024-03-14"},
	}
	for _, tt := range tests {
		got, err := coerceDate(tt.in)
		if err != nil {
			t.Errorf("coerceDate(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("coerceDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCoerceNumber(t *testing.T) {
	tests := []struct{ in, want string }{
		{"450000", "450000"},
		{"$450,000", "450000"},
		{"1,250,000.50", "1250000.5"},
		{"-12.5", "-12.5"},
	}
	for _, tt := range tests {
		got, err := coerceNumber(tt.in)
		if err != nil {
			t.Errorf("coerceNumber(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("coerceNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCoerceMulti(t *testing.T) {
	tests := []struct{ in, want string }{
		{"condo", "condo"},
		{"condo, townhouse", "condo, townhouse"},
		{"condo;townhouse ;  loft", "condo, townhouse, loft"},
		{" , ,", ""},
	}
	for _, tt := range tests {
		if got := coerceMulti(tt.in); got != tt.want {
			t.Errorf("coerceMulti(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
