package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// maxAutoSnapshots is how many automatic snapshots survive cleanup.
const maxAutoSnapshots = 5

// Snapshot errors.
var (
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrSnapshotCorrupted = errors.New("snapshot integrity check failed")
	ErrSnapshotExists    = errors.New("snapshot already exists")
	ErrInvalidSnapshotID = errors.New("invalid snapshot id")
)

// SnapshotInfo describes a stored copy of the ledger.
type SnapshotInfo struct {
	CreatedAt     time.Time `json:"created_at"`
	ID            string    `json:"id"`
	Description   string    `json:"description"`
	FileSize      int64     `json:"file_size"`
	Transactions  int       `json:"transactions"`
	RefundLinks   int       `json:"refund_links"`
	Groups        int       `json:"groups"`
	SplitParts    int       `json:"split_parts"`
	SchemaVersion int       `json:"schema_version"`
	IsAuto        bool      `json:"is_auto"`
}

// SnapshotManager creates and restores copies of the ledger database.
type SnapshotManager struct {
	db   *sql.DB
	now  func() time.Time
	path string
	dir  string
}

// Snapshots returns a manager storing snapshots next to the database file.
func (s *SQLiteStorage) Snapshots() (*SnapshotManager, error) {
	dir := filepath.Join(filepath.Dir(s.dbPath), "snapshots")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create snapshots directory: %w", err)
	}
	return &SnapshotManager{db: s.db, path: s.dbPath, dir: dir, now: s.now}, nil
}

// Create copies the ledger into a snapshot named id. An empty id is generated.
func (m *SnapshotManager) Create(ctx context.Context, id, description string) (*SnapshotInfo, error) {
	return m.create(ctx, id, description, false)
}

// AutoSnapshot takes a snapshot before the named operation and prunes old ones.
func (m *SnapshotManager) AutoSnapshot(ctx context.Context, operation string) (*SnapshotInfo, error) {
	id := fmt.Sprintf("auto-%s-%s", operation, m.now().Format("20060102-150405.000"))
	info, err := m.create(ctx, strings.ReplaceAll(id, ".", ""), "Automatic snapshot before "+operation, true)
	if err != nil {
		return nil, err
	}

	if err := m.pruneAuto(ctx); err != nil {
		slog.Warn("failed to prune automatic snapshots", "error", err)
	}
	return info, nil
}

func (m *SnapshotManager) create(ctx context.Context, id, description string, auto bool) (*SnapshotInfo, error) {
	if id == "" {
		id = "snapshot-" + m.now().Format("20060102-150405")
	}
	if err := validateSnapshotID(id); err != nil {
		return nil, err
	}

	dbPath := m.snapshotPath(id)
	if _, err := os.Stat(dbPath); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotExists, id)
	}

	info := SnapshotInfo{
		ID:          id,
		Description: description,
		CreatedAt:   m.now(),
		IsAuto:      auto,
	}
	if err := m.collectCounts(ctx, &info); err != nil {
		return nil, err
	}

	if _, err := m.db.ExecContext(ctx, "VACUUM INTO ?", dbPath); err != nil {
		return nil, fmt.Errorf("failed to copy database: %w", err)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}
	info.FileSize = stat.Size()

	if err := m.saveInfo(info); err != nil {
		if rmErr := os.Remove(dbPath); rmErr != nil {
			slog.Error("failed to remove snapshot after metadata failure", "error", rmErr)
		}
		return nil, err
	}

	slog.Info("Created snapshot", "id", id, "transactions", info.Transactions, "auto", auto)
	return &info, nil
}

// List returns every snapshot, newest first. Unreadable sidecars are skipped.
func (m *SnapshotManager) List(_ context.Context) ([]SnapshotInfo, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots directory: %w", err)
	}

	var snapshots []SnapshotInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".meta.json") {
			continue
		}
		info, err := m.loadInfo(strings.TrimSuffix(entry.Name(), ".meta.json"))
		if err != nil {
			slog.Debug("skipping unreadable snapshot metadata", "file", entry.Name(), "error", err)
			continue
		}
		snapshots = append(snapshots, *info)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})
	return snapshots, nil
}

// Restore replaces the live database with snapshot id. The storage the
// manager came from is closed and must be reopened afterwards.
func (m *SnapshotManager) Restore(_ context.Context, id string) error {
	if err := validateSnapshotID(id); err != nil {
		return err
	}

	src := m.snapshotPath(id)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
		}
		return fmt.Errorf("failed to access snapshot: %w", err)
	}
	if err := verifyIntegrity(src); err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotCorrupted, err)
	}

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	// WAL files from the old database would be replayed over the restored copy.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(m.path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s file: %w", suffix, err)
		}
	}

	backup := m.path + ".restore-backup"
	if err := copyFile(m.path, backup); err != nil {
		return fmt.Errorf("failed to back up current database: %w", err)
	}
	if err := copyFile(src, m.path); err != nil {
		if restoreErr := copyFile(backup, m.path); restoreErr != nil {
			slog.Error("failed to put back database after restore failure", "error", restoreErr)
		}
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	if err := os.Remove(backup); err != nil {
		slog.Warn("failed to remove restore backup", "error", err)
	}

	slog.Info("Restored snapshot", "id", id)
	return nil
}

// Delete removes snapshot id and its metadata.
func (m *SnapshotManager) Delete(_ context.Context, id string) error {
	if err := validateSnapshotID(id); err != nil {
		return err
	}
	if err := os.Remove(m.snapshotPath(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
		}
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	if err := os.Remove(m.metaPath(id)); err != nil && !os.IsNotExist(err) {
		slog.Debug("failed to remove snapshot metadata", "id", id, "error", err)
	}
	return nil
}

func (m *SnapshotManager) pruneAuto(ctx context.Context) error {
	snapshots, err := m.List(ctx)
	if err != nil {
		return err
	}

	kept := 0
	for _, snap := range snapshots {
		if !snap.IsAuto {
			continue
		}
		kept++
		if kept > maxAutoSnapshots {
			if err := m.Delete(ctx, snap.ID); err != nil {
				slog.Debug("failed to delete old automatic snapshot", "id", snap.ID, "error", err)
			}
		}
	}
	return nil
}

func (m *SnapshotManager) collectCounts(ctx context.Context, info *SnapshotInfo) error {
	counts := []struct {
		dest  *int
		query string
	}{
		{&info.SchemaVersion, `PRAGMA user_version`},
		{&info.Transactions, `SELECT COUNT(*) FROM transactions WHERE is_deleted = 0`},
		{&info.RefundLinks, `SELECT COUNT(*) FROM transactions WHERE is_deleted = 0 AND link_parent_id != ''`},
		{&info.Groups, `SELECT COUNT(DISTINCT transaction_group_id) FROM transactions WHERE is_deleted = 0 AND transaction_group_id != ''`},
		{&info.SplitParts, `SELECT COUNT(*) FROM transactions WHERE is_deleted = 0 AND is_split = 1`},
	}
	for _, c := range counts {
		if err := m.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return fmt.Errorf("failed to collect snapshot counts: %w", err)
		}
	}
	return nil
}

func (m *SnapshotManager) snapshotPath(id string) string {
	return filepath.Join(m.dir, id+".db")
}

func (m *SnapshotManager) metaPath(id string) string {
	return filepath.Join(m.dir, id+".meta.json")
}

func (m *SnapshotManager) saveInfo(info SnapshotInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot metadata: %w", err)
	}

	path := m.metaPath(info.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write snapshot metadata: %w", err)
	}
	return os.Rename(tmp, path)
}

func (m *SnapshotManager) loadInfo(id string) (*SnapshotInfo, error) {
	data, err := os.ReadFile(m.metaPath(id)) // #nosec G304 - id is validated
	if err != nil {
		return nil, err
	}
	var info SnapshotInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func validateSnapshotID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidSnapshotID, id)
	}
	return nil
}

func verifyIntegrity(path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check: %s", result)
	}
	return nil
}

// copyFile copies src to dst through a temp file and an atomic rename.
func copyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".tmp"
	out, err := os.Create(filepath.Clean(tmp))
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
