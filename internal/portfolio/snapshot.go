package portfolio

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Snapshot is the persisted account document. It is rewritten in full after
// every ledger mutation.
type Snapshot struct {
	InitialBalance float64  `json:"initial_balance"`
	Balance        float64  `json:"balance"`
	Trades         []Trade  `json:"trades"`
	ActiveTradeIDs []string `json:"active_trade_ids"`
}

// SnapshotStore loads and saves account snapshots.
type SnapshotStore interface {
	// Load returns nil, nil when no snapshot exists yet.
	Load() (*Snapshot, error)
	Save(*Snapshot) error
}

// FileStore keeps the snapshot in a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the snapshot file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return &snap, nil
}

// Save writes to a temp file and renames it over the snapshot so readers
// never see a partial document.
func (s *FileStore) Save(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// snapshotLocked builds the snapshot. Caller holds the lock.
func (l *Ledger) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		InitialBalance: l.initialBalance,
		Balance:        l.balance,
		Trades:         make([]Trade, 0, len(l.trades)),
		ActiveTradeIDs: make([]string, 0, len(l.active)),
	}
	for _, t := range l.trades {
		snap.Trades = append(snap.Trades, t.clone())
		if _, ok := l.active[t.ID]; ok {
			snap.ActiveTradeIDs = append(snap.ActiveTradeIDs, t.ID)
		}
	}
	return snap
}

// persistLocked saves the snapshot. A failed save is logged and the
// in-memory state kept. Caller holds the write lock.
func (l *Ledger) persistLocked() {
	if l.store == nil {
		return
	}
	if err := l.store.Save(l.snapshotLocked()); err != nil {
		slog.Error("ledger snapshot save failed", "error", err)
	}
}

// Snapshot returns the current account document.
func (l *Ledger) Snapshot() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

// restore replaces the in-memory state with snap.
func (l *Ledger) restore(snap *Snapshot) {
	if snap.InitialBalance > 0 {
		l.initialBalance = snap.InitialBalance
	}
	l.balance = snap.Balance
	l.trades = make([]*Trade, 0, len(snap.Trades))
	l.active = make(map[string]*Trade)

	activeIDs := make(map[string]bool, len(snap.ActiveTradeIDs))
	for _, id := range snap.ActiveTradeIDs {
		activeIDs[id] = true
	}
	for i := range snap.Trades {
		t := snap.Trades[i].clone()
		if t.Status == "" {
			t.Status = StatusOpen
		}
		l.trades = append(l.trades, &t)
		if activeIDs[t.ID] {
			l.active[t.ID] = &t
		}
	}
}
