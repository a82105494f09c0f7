package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
	"github.com/keystone-labs/propsync-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.RecordStore = (*RecordStore)(nil)

// RecordStore implements driven.RecordStore using PostgreSQL. Fields are
// stored as JSONB; when an encryptor is configured, contact columns are
// sealed on the way in and opened on the way out.
type RecordStore struct {
	db        *DB
	encryptor *FieldEncryptor
}

// NewRecordStore creates a new RecordStore. The encryptor is optional.
func NewRecordStore(db *DB, encryptor *FieldEncryptor) *RecordStore {
	return &RecordStore{db: db, encryptor: encryptor}
}

// ListActiveKeys returns key -> fingerprint for every non-deleted record.
func (s *RecordStore) ListActiveKeys(ctx context.Context, entityType domain.EntityType) (map[string]string, error) {
	query := `
		SELECT key, fingerprint
		FROM records
		WHERE entity_type = $1 AND deleted_at IS NULL
	`

	rows, err := s.db.QueryContext(ctx, query, string(entityType))
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	index := make(map[string]string)
	for rows.Next() {
		var key, fingerprint string
		if err := rows.Scan(&key, &fingerprint); err != nil {
			return nil, err
		}
		index[key] = fingerprint
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}
	return index, nil
}

// Get retrieves one record by key, soft-deleted or not.
func (s *RecordStore) Get(ctx context.Context, entityType domain.EntityType, key string) (*domain.StoreRecord, error) {
	query := `
		SELECT entity_type, key, fields, fingerprint, updated_at, deleted_at
		FROM records
		WHERE entity_type = $1 AND key = $2
	`

	rec, err := s.scanRecord(s.db.QueryRowContext(ctx, query, string(entityType), key))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, classifyError(err)
	}
	return rec, nil
}

// GetByKeys bulk-fetches active records; missing keys are simply absent.
func (s *RecordStore) GetByKeys(ctx context.Context, entityType domain.EntityType, keys []string) (map[string]*domain.StoreRecord, error) {
	if len(keys) == 0 {
		return map[string]*domain.StoreRecord{}, nil
	}

	query := `
		SELECT entity_type, key, fields, fingerprint, updated_at, deleted_at
		FROM records
		WHERE entity_type = $1 AND key = ANY($2) AND deleted_at IS NULL
	`

	rows, err := s.db.QueryContext(ctx, query, string(entityType), pq.Array(keys))
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	result := make(map[string]*domain.StoreRecord, len(keys))
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result[rec.Key] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}
	return result, nil
}

// Upsert writes a record, reactivating it if it was soft-deleted.
func (s *RecordStore) Upsert(ctx context.Context, record *domain.StoreRecord) error {
	fields := record.Fields
	if s.encryptor != nil {
		sealed, err := s.encryptor.EncryptFields(fields)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrValidationFailed, err)
		}
		fields = sealed
	}

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: marshal fields: %v", domain.ErrValidationFailed, err)
	}

	query := `
		INSERT INTO records (entity_type, key, fields, fingerprint, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, now(), NULL)
		ON CONFLICT (entity_type, key) DO UPDATE SET
			fields = EXCLUDED.fields,
			fingerprint = EXCLUDED.fingerprint,
			updated_at = now(),
			deleted_at = NULL
	`

	_, err = s.db.ExecContext(ctx, query,
		string(record.EntityType),
		record.Key,
		fieldsJSON,
		record.Fingerprint,
	)
	return classifyError(err)
}

// SoftDelete marks a record deleted. Deleting a missing or already-deleted
// key is already-satisfied, not an error.
func (s *RecordStore) SoftDelete(ctx context.Context, entityType domain.EntityType, key string) error {
	query := `
		UPDATE records
		SET deleted_at = now(), updated_at = now()
		WHERE entity_type = $1 AND key = $2 AND deleted_at IS NULL
	`

	_, err := s.db.ExecContext(ctx, query, string(entityType), key)
	return classifyError(err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *RecordStore) scanRecord(row rowScanner) (*domain.StoreRecord, error) {
	var rec domain.StoreRecord
	var entityType string
	var fieldsJSON []byte
	var updatedAt time.Time
	var deletedAt sql.NullTime

	if err := row.Scan(&entityType, &rec.Key, &fieldsJSON, &rec.Fingerprint, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}
	rec.EntityType = domain.EntityType(entityType)
	rec.UpdatedAt = updatedAt
	rec.DeletedAt = TimePtr(deletedAt)

	fields := make(map[string]string)
	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &fields); err != nil {
			return nil, fmt.Errorf("unmarshal fields for %s: %w", rec.Key, err)
		}
	}
	if s.encryptor != nil {
		opened, err := s.encryptor.DecryptFields(fields)
		if err != nil {
			return nil, fmt.Errorf("decrypt fields for %s: %w", rec.Key, err)
		}
		fields = opened
	}
	rec.Fields = fields

	return &rec, nil
}
