package sheets

import (
	"errors"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
)

func TestParseRows(t *testing.T) {
	values := [][]interface{}{
		{"Seller Number", "Name", "Asking Price"},
		{"S-1", "Ada", "450000"},
		{"S-2", "Grace"},            // trailing cells truncated by the API
		{"", "no key, skipped"},     // blank key
		{"   ", "whitespace key"},   // blank after trimming
		{"S-3", "", "not truncated"}, // explicitly empty cell stays present
	}

	rows, skipped := parseRows("seller_number", values)

	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	first := rows[0]
	if first.Key != "S-1" || first.RowIndex != 2 {
		t.Errorf("first row = key %q index %d, want S-1 at sheet row 2", first.Key, first.RowIndex)
	}
	if first.Columns["name"] != "Ada" || first.Columns["asking_price"] != "450000" {
		t.Errorf("headers not normalized: %v", first.Columns)
	}

	// Truncated trailing cell is absent, not empty.
	if _, ok := rows[1].Cell("asking_price"); ok {
		t.Error("truncated cell should be absent from the row")
	}
	// An explicitly empty cell inside the row is present.
	if v, ok := rows[2].Cell("name"); !ok || v != "" {
		t.Error("explicitly empty cell should be present as empty string")
	}
	if rows[2].RowIndex != 6 {
		t.Errorf("row index = %d, want 6 (skipped rows keep their position)", rows[2].RowIndex)
	}
}

func TestParseRows_MissingKeyColumn(t *testing.T) {
	values := [][]interface{}{
		{"Name", "Asking Price"},
		{"Ada", "450000"},
		{"Grace", "300000"},
	}

	rows, skipped := parseRows("seller_number", values)
	if len(rows) != 0 {
		t.Errorf("rows without a key column must not parse, got %d", len(rows))
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
}

func TestParseRows_Empty(t *testing.T) {
	rows, skipped := parseRows("seller_number", nil)
	if rows != nil || skipped != 0 {
		t.Errorf("empty tab should produce an empty snapshot, got %d rows %d skipped", len(rows), skipped)
	}
}

func TestClassifyAPIError(t *testing.T) {
	rateLimited := classifyAPIError(&googleapi.Error{Code: 429, Message: "quota"})
	if !errors.Is(rateLimited, domain.ErrRateLimited) {
		t.Errorf("429 should classify as rate limited, got %v", rateLimited)
	}

	serverErr := classifyAPIError(&googleapi.Error{Code: 503, Message: "backend"})
	if !errors.Is(serverErr, domain.ErrSourceUnavailable) {
		t.Errorf("503 should classify as source unavailable, got %v", serverErr)
	}

	plain := classifyAPIError(errors.New("connection reset"))
	if !errors.Is(plain, domain.ErrSourceUnavailable) {
		t.Errorf("transport errors should classify as source unavailable, got %v", plain)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Error("empty config should not validate")
	}
	cfg := Config{SpreadsheetID: "abc", CredentialsFile: "creds.json"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestDefaultTabs_CoverAllEntityTypes(t *testing.T) {
	tabs := DefaultTabs()
	for _, et := range domain.AllEntityTypes() {
		tab, ok := tabs[et]
		if !ok {
			t.Errorf("no tab for %s", et)
			continue
		}
		if tab.Name == "" || tab.KeyColumn == "" {
			t.Errorf("incomplete tab config for %s: %+v", et, tab)
		}
	}
}
