package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/kitemc/verifyd/internal/models"
	apperrors "github.com/kitemc/verifyd/pkg/errors"
)

// FileUserStore keeps user records in memory and persists them as a single
// JSON snapshot that is replaced atomically (write to temp, rename over).
type FileUserStore struct {
	mu    sync.Mutex
	path  string
	users map[string]*models.UserRecord // by account id, tombstones included
	dirty bool
}

// NewFileUserStore loads the snapshot at path, which may not exist yet.
func NewFileUserStore(path string) (*FileUserStore, error) {
	s := &FileUserStore{
		path:  path,
		users: make(map[string]*models.UserRecord),
	}

	var records []models.UserRecord
	if err := loadSnapshot(path, &records); err != nil {
		return nil, fmt.Errorf("user store: load %s: %w", path, err)
	}
	for i := range records {
		rec := records[i]
		s.users[rec.ID] = &rec
	}

	return s, nil
}

func (s *FileUserStore) GetAllUsers(ctx context.Context) ([]models.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.UserRecord, 0, len(s.users))
	for _, rec := range s.users {
		if rec.Tombstoned() {
			continue
		}
		out = append(out, *rec)
	}
	sortUsers(out)
	return out, nil
}

func (s *FileUserStore) GetUserByUsername(ctx context.Context, username string) (*models.UserRecord, error) {
	key := models.NormalizeUsername(username)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.users {
		if rec.Tombstoned() {
			continue
		}
		if rec.UsernameKey == key {
			cpy := *rec
			return &cpy, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *FileUserStore) GetUserByID(ctx context.Context, id string) (*models.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[id]
	if !ok || rec.Tombstoned() {
		return nil, apperrors.ErrNotFound
	}
	cpy := *rec
	return &cpy, nil
}

func (s *FileUserStore) RegisterUser(ctx context.Context, user *models.UserRecord) error {
	if user == nil || user.ID == "" {
		return errors.New("user store: record with id is required")
	}

	key := models.NormalizeUsername(user.Username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return apperrors.ErrConflict
	}
	for _, rec := range s.users {
		if !rec.Tombstoned() && rec.UsernameKey == key {
			return apperrors.ErrConflict
		}
	}

	cpy := *user
	cpy.UsernameKey = key
	s.users[cpy.ID] = &cpy
	s.dirty = true
	return nil
}

func (s *FileUserStore) UpdateStatus(ctx context.Context, id string, status models.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[id]
	if !ok || rec.Tombstoned() {
		return apperrors.ErrNotFound
	}

	rec.Status = status
	rec.LastStatusChangeAt = at
	s.dirty = true
	return nil
}

func (s *FileUserStore) DeleteUser(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[id]
	if !ok || rec.Tombstoned() {
		return apperrors.ErrNotFound
	}

	deleted := at
	rec.DeletedAt = &deleted
	s.dirty = true
	return nil
}

func (s *FileUserStore) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	records := make([]models.UserRecord, 0, len(s.users))
	for _, rec := range s.users {
		records = append(records, *rec)
	}
	sortUsers(records)

	if err := writeSnapshot(s.path, records); err != nil {
		return apperrors.WrapStorage(err)
	}
	s.dirty = false
	return nil
}

// FileAuditStore persists the audit trail as an append-only JSON snapshot.
type FileAuditStore struct {
	mu      sync.Mutex
	path    string
	records []models.AuditRecord
	nextSeq uint64
	dirty   bool
}

// NewFileAuditStore loads the snapshot at path, which may not exist yet.
func NewFileAuditStore(path string) (*FileAuditStore, error) {
	s := &FileAuditStore{path: path, nextSeq: 1}

	if err := loadSnapshot(path, &s.records); err != nil {
		return nil, fmt.Errorf("audit store: load %s: %w", path, err)
	}
	for _, rec := range s.records {
		if rec.Seq >= s.nextSeq {
			s.nextSeq = rec.Seq + 1
		}
	}

	return s, nil
}

func (s *FileAuditStore) Append(ctx context.Context, record *models.AuditRecord) error {
	if record == nil {
		return errors.New("audit store: record is required")
	}
	if record.Action == "" {
		return errors.New("audit store: action is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record.Seq = s.nextSeq
	s.nextSeq++
	s.records = append(s.records, *record)
	s.dirty = true
	return nil
}

func (s *FileAuditStore) List(ctx context.Context, filter AuditFilter) ([]models.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.AuditRecord, 0, len(s.records))
	for _, rec := range s.records {
		if !matchAudit(rec, filter) {
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *FileAuditStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	for _, rec := range s.records {
		if rec.Timestamp.Before(olderThan) {
			continue
		}
		kept = append(kept, rec)
	}

	removed := len(s.records) - len(kept)
	if removed > 0 {
		s.records = kept
		s.dirty = true
	}
	return removed, nil
}

func (s *FileAuditStore) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	if err := writeSnapshot(s.path, s.records); err != nil {
		return apperrors.WrapStorage(err)
	}
	s.dirty = false
	return nil
}

func matchAudit(rec models.AuditRecord, f AuditFilter) bool {
	if f.AccountID != "" && rec.AccountID != f.AccountID {
		return false
	}
	if f.Actor != "" && rec.Actor != f.Actor {
		return false
	}
	if f.Action != "" && rec.Action != f.Action {
		return false
	}
	if f.Since != nil && rec.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && rec.Timestamp.After(*f.Until) {
		return false
	}
	return true
}

func sortUsers(records []models.UserRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}

func loadSnapshot(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// writeSnapshot replaces the snapshot atomically: a crash mid-write leaves
// the previous file intact because the rename is the commit point.
func writeSnapshot(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
