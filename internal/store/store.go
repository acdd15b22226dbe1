// Package store provides restart-recovery position snapshots and an
// optional append-only audit trail.
//
// Position snapshots use atomic file replacement (write to .tmp, then
// rename) to prevent corruption from partial writes or crashes mid-save,
// same as the teacher's store.go. They are a recovery convenience only —
// startup reconciliation (spec §4.11) always re-syncs positions from the
// exchange, so a missing or stale snapshot file is never a correctness
// problem, only a slower cold start.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cents-quoter/pkg/types"
)

// PositionStore persists per-ticker position snapshots to JSON files in a
// designated directory. All operations are mutex-protected to prevent
// concurrent file corruption.
type PositionStore struct {
	dir string
	mu  sync.Mutex
}

// Open creates a PositionStore backed by the given directory.
func Open(dir string) (*PositionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &PositionStore{dir: dir}, nil
}

func (s *PositionStore) path(ticker types.Ticker) string {
	return filepath.Join(s.dir, "pos_"+string(ticker)+".json")
}

// leg is one side's on-disk contracts + cost basis. Recording YES and NO as
// independent nested legs, rather than marshaling types.Position directly,
// mirrors the exchange's own per-side accounting — the two legs aren't a
// signed net quantity, so the file shouldn't collapse them into one either.
type leg struct {
	Contracts int   `json:"contracts"`
	CostBasis int64 `json:"cost_basis_cents"`
}

type positionSnapshot struct {
	Ticker      types.Ticker `json:"ticker"`
	Yes         leg          `json:"yes"`
	No          leg          `json:"no"`
	LastUpdated time.Time    `json:"last_updated"`
}

func toSnapshot(pos types.Position) positionSnapshot {
	return positionSnapshot{
		Ticker:      pos.Ticker,
		Yes:         leg{Contracts: pos.YesContracts, CostBasis: int64(pos.YesCostBasis)},
		No:          leg{Contracts: pos.NoContracts, CostBasis: int64(pos.NoCostBasis)},
		LastUpdated: pos.LastUpdated,
	}
}

func (s positionSnapshot) toPosition() types.Position {
	return types.Position{
		Ticker:       s.Ticker,
		YesContracts: s.Yes.Contracts,
		NoContracts:  s.No.Contracts,
		YesCostBasis: int(s.Yes.CostBasis),
		NoCostBasis:  int(s.No.CostBasis),
		LastUpdated:  s.LastUpdated,
	}
}

// SavePosition atomically persists pos's YES/NO legs. It writes to a .tmp
// file first, then renames over the target so the file is never left
// partially written by a crash mid-save.
func (s *PositionStore) SavePosition(pos types.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(toSnapshot(pos))
	if err != nil {
		return fmt.Errorf("marshal position snapshot: %w", err)
	}

	path := s.path(pos.Ticker)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write position snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadPosition restores ticker's position from disk. Returns nil, nil if
// no saved snapshot exists.
func (s *PositionStore) LoadPosition(ticker types.Ticker) (*types.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(ticker))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read position snapshot: %w", err)
	}

	var snap positionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal position snapshot: %w", err)
	}
	pos := snap.toPosition()
	return &pos, nil
}

// SaveAll persists every position in positions, continuing past individual
// write failures so one bad ticker doesn't block the rest; the first error
// encountered is returned after all writes are attempted.
func (s *PositionStore) SaveAll(positions []types.Position) error {
	var firstErr error
	for _, pos := range positions {
		if err := s.SavePosition(pos); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
