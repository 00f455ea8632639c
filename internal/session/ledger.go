package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/boddenberg/repartos-bfa-go/internal/port"

	"go.uber.org/zap"
)

// DefaultSeenLimit is how many alerted order ids are remembered.
const DefaultSeenLimit = 300

// Ledger is the Seen-Orders Ledger: the ids already alerted on, in
// insertion order, deduplicated and capped to the most recent limit.
type Ledger struct {
	mu     sync.Mutex
	kv     port.KVStore
	limit  int
	ids    []string
	index  map[string]struct{}
	logger *zap.Logger
}

// NewLedger creates an empty ledger; call Load to restore it.
func NewLedger(kv port.KVStore, limit int, logger *zap.Logger) *Ledger {
	if limit <= 0 {
		limit = DefaultSeenLimit
	}
	return &Ledger{
		kv:     kv,
		limit:  limit,
		index:  make(map[string]struct{}),
		logger: logger,
	}
}

// Load restores the ledger from storage. Missing or corrupt data yields an
// empty ledger; it is never an error.
func (l *Ledger) Load(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ids = nil
	l.index = make(map[string]struct{})

	raw, err := l.kv.Get(ctx, KeySeenOrders)
	if err != nil {
		if !errors.Is(err, port.ErrKeyNotFound) {
			l.logger.Warn("read seen orders failed", zap.Error(err))
		}
		return
	}
	var stored []string
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		l.logger.Warn("seen orders are unreadable, starting empty", zap.Error(err))
		return
	}
	for _, id := range stored {
		l.appendLocked(id)
	}
	l.truncateLocked()
}

// HasSeen reports whether an alert was already raised for id.
func (l *Ledger) HasSeen(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.index[id]
	return ok
}

// MarkSeen records id and persists the most recent ids. A persistence
// failure is logged; the in-memory ledger stays authoritative.
func (l *Ledger) MarkSeen(ctx context.Context, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.appendLocked(id)
	l.truncateLocked()

	raw, err := json.Marshal(l.ids)
	if err != nil {
		return
	}
	if err := l.kv.Set(ctx, KeySeenOrders, string(raw)); err != nil {
		l.logger.Warn("persist seen orders failed", zap.Error(err))
	}
}

// IDs returns the ids oldest first.
func (l *Ledger) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.ids))
	copy(out, l.ids)
	return out
}

// Len returns the number of remembered ids.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}

// Clear forgets every id, in memory and in storage.
func (l *Ledger) Clear(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = nil
	l.index = make(map[string]struct{})
	if err := l.kv.Delete(ctx, KeySeenOrders); err != nil {
		l.logger.Warn("clear seen orders failed", zap.Error(err))
	}
}

func (l *Ledger) appendLocked(id string) {
	if id == "" {
		return
	}
	if _, ok := l.index[id]; ok {
		return
	}
	l.ids = append(l.ids, id)
	l.index[id] = struct{}{}
}

func (l *Ledger) truncateLocked() {
	if over := len(l.ids) - l.limit; over > 0 {
		for _, id := range l.ids[:over] {
			delete(l.index, id)
		}
		l.ids = append([]string(nil), l.ids[over:]...)
	}
}
