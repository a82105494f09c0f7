package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
	"github.com/keystone-labs/propsync-core/internal/core/ports/driven"
)

// Ensure Reader implements SourceReader
var _ driven.SourceReader = (*Reader)(nil)

// Reader reads entity snapshots from a Google Sheets spreadsheet. The
// spreadsheet is the system of record and is never written to from here.
type Reader struct {
	service       *sheets.Service
	spreadsheetID string
	tabs          map[domain.EntityType]TabConfig
	logger        *slog.Logger
}

// NewReader creates a Sheets-backed source reader.
func NewReader(ctx context.Context, cfg Config, logger *slog.Logger) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	tabs := cfg.Tabs
	if tabs == nil {
		tabs = DefaultTabs()
	}

	service, err := sheets.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Reader{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		tabs:          tabs,
		logger:        logger,
	}, nil
}

// ReadAll returns the complete current snapshot for an entity type. The
// Sheets API returns whole tabs in one call, so there is no pagination to
// hide. Rows with a blank business key are dropped and counted.
func (r *Reader) ReadAll(ctx context.Context, entityType domain.EntityType) (*domain.SourceSnapshot, error) {
	tab, ok := r.tabs[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEntityType, entityType)
	}

	resp, err := r.service.Spreadsheets.Values.Get(r.spreadsheetID, tab.Name).Context(ctx).Do()
	if err != nil {
		return nil, classifyAPIError(err)
	}

	rows, skipped := parseRows(tab.KeyColumn, resp.Values)
	if skipped > 0 {
		r.logger.Warn("skipped rows without a business key",
			"entity_type", entityType,
			"tab", tab.Name,
			"skipped", skipped,
		)
	}

	return &domain.SourceSnapshot{
		EntityType:  entityType,
		Rows:        rows,
		SkippedRows: skipped,
		ReadAt:      time.Now(),
	}, nil
}

// classifyAPIError maps Sheets API failures onto the engine's error
// taxonomy: quota exhaustion is retriable as rate limiting, everything else
// means the source is unavailable this run.
func classifyAPIError(err error) error {
	if apiErr, ok := err.(*googleapi.Error); ok && apiErr.Code == 429 {
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
}

// parseRows converts raw sheet values into source rows. The first row is
// the header; its cells become normalized column names. The API truncates
// trailing empty cells, so a missing cell is an absent column, which the
// merge policy distinguishes from an explicitly empty one.
func parseRows(keyColumn string, values [][]interface{}) ([]domain.SourceRow, int) {
	if len(values) == 0 {
		return nil, 0
	}

	header := make([]string, len(values[0]))
	keyIdx := -1
	for i, cell := range values[0] {
		name := normalizeColumn(cellString(cell))
		header[i] = name
		if name == keyColumn {
			keyIdx = i
		}
	}
	if keyIdx < 0 {
		// Whole tab unusable without its key column.
		return nil, len(values) - 1
	}

	var rows []domain.SourceRow
	skipped := 0
	for i, raw := range values[1:] {
		// Sheet row numbers are 1-based and row 1 is the header.
		rowIndex := i + 2

		columns := make(map[string]string, len(raw))
		for j, cell := range raw {
			if j >= len(header) || header[j] == "" {
				continue
			}
			columns[header[j]] = cellString(cell)
		}

		key := strings.TrimSpace(columns[keyColumn])
		if key == "" {
			skipped++
			continue
		}

		rows = append(rows, domain.SourceRow{
			Key:      key,
			Columns:  columns,
			RowIndex: rowIndex,
		})
	}
	return rows, skipped
}

// normalizeColumn canonicalizes a human-typed header: "Asking Price " and
// "asking_price" name the same column.
func normalizeColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(name, " ", "_")
}

func cellString(cell interface{}) string {
	if s, ok := cell.(string); ok {
		return s
	}
	return fmt.Sprint(cell)
}
