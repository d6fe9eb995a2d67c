package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/virtualdevices/internal/core/domain"
)

var ErrEntryNotFound = errors.New("entry not found")

const entryColumns = `entry_id, title, data, created_at, updated_at`

// SQLiteEntryStore keeps device entries with their data as a JSON document.
type SQLiteEntryStore struct {
	db  *DB
	now func() time.Time
}

func NewSQLiteEntryStore(db *DB) *SQLiteEntryStore {
	return &SQLiteEntryStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQLiteEntryStore) CreateEntry(ctx context.Context, title string, data domain.EntryData) (*domain.DeviceEntry, error) {
	entry := domain.DeviceEntry{
		EntryId: domain.NewRecordId(),
		Title:   title,
		Data:    normalize(data),
	}
	if err := s.insert(ctx, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ImportEntry stores entry as given, replacing an entry with the same id.
// A missing id is generated.
func (s *SQLiteEntryStore) ImportEntry(ctx context.Context, entry domain.DeviceEntry) (*domain.DeviceEntry, error) {
	if entry.EntryId == "" {
		entry.EntryId = domain.NewRecordId()
	}
	entry.Data = normalize(entry.Data)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE entry_id = ?`, entry.EntryId); err != nil {
		return nil, fmt.Errorf("replacing entry: %w", err)
	}
	if err := s.insert(ctx, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *SQLiteEntryStore) insert(ctx context.Context, entry *domain.DeviceEntry) error {
	raw, err := json.Marshal(entry.Data)
	if err != nil {
		return fmt.Errorf("encoding entry data: %w", err)
	}
	now := s.now()
	entry.CreatedAt, entry.UpdatedAt = now, now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?)`,
		entry.EntryId, entry.Title, string(raw), now, now)
	if err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}
	return nil
}

func (s *SQLiteEntryStore) GetEntry(ctx context.Context, entryId string) (*domain.DeviceEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE entry_id = ?`, entryId)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryId)
		}
		return nil, fmt.Errorf("querying entry: %w", err)
	}
	return entry, nil
}

func (s *SQLiteEntryStore) ListEntries(ctx context.Context) ([]domain.DeviceEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries ORDER BY created_at, title`)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.DeviceEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteEntryStore) UpdateEntryData(ctx context.Context, entryId string, data domain.EntryData) error {
	raw, err := json.Marshal(normalize(data))
	if err != nil {
		return fmt.Errorf("encoding entry data: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE entries SET data = ?, updated_at = ? WHERE entry_id = ?`,
		string(raw), s.now(), entryId)
	if err != nil {
		return fmt.Errorf("updating entry: %w", err)
	}
	return expectRow(res, entryId)
}

func (s *SQLiteEntryStore) DeleteEntry(ctx context.Context, entryId string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE entry_id = ?`, entryId)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	return expectRow(res, entryId)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*domain.DeviceEntry, error) {
	var entry domain.DeviceEntry
	var raw string
	if err := row.Scan(&entry.EntryId, &entry.Title, &raw, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &entry.Data); err != nil {
		return nil, fmt.Errorf("decoding entry %s: %w", entry.EntryId, err)
	}
	entry.Data = normalize(entry.Data)
	return &entry, nil
}

func expectRow(res sql.Result, entryId string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, entryId)
	}
	return nil
}

// normalize copies data so stored documents always carry non-nil lists and
// bags.
func normalize(data domain.EntryData) domain.EntryData {
	return data.Clone()
}
