// Package session holds the per-session persisted state of the dashboard:
// the authenticated identity, the outlet selection and the seen-orders
// ledger. Everything lives in a namespaced port.KVStore and survives BFA
// restarts when the backend is persistent.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"
	"github.com/boddenberg/repartos-bfa-go/internal/port"

	"go.uber.org/zap"
)

// Persisted keys, named after the dashboard's local storage keys.
const (
	KeyIdentity         = "usuario_reparto"
	KeySeenOrders       = "repartidor_alert_seen"
	KeyCourierSelection = "localSeleccionadoRepartidor"
	KeyAdminSelection   = "localSeleccionado"
)

// Store is the Session Store: identity plus scope selection.
//
// Lifecycle: SetIdentity on login replaces any prior identity; Clear on
// logout removes identity, selections and the seen-orders ledger.
type Store struct {
	kv     port.KVStore
	logger *zap.Logger
}

// NewStore wraps a (namespaced) KV store.
func NewStore(kv port.KVStore, logger *zap.Logger) *Store {
	return &Store{kv: kv, logger: logger}
}

// KV exposes the underlying store (the ledger shares it).
func (s *Store) KV() port.KVStore {
	return s.kv
}

// Identity returns the stored identity, or nil when absent. A corrupt blob
// is removed and treated as absent.
func (s *Store) Identity(ctx context.Context) (*domain.Identity, error) {
	raw, err := s.kv.Get(ctx, KeyIdentity)
	if errors.Is(err, port.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}
	var id domain.Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil || id.Token == "" {
		s.logger.Warn("stored identity is unreadable, discarding", zap.Error(err))
		_ = s.kv.Delete(ctx, KeyIdentity)
		return nil, nil
	}
	return &id, nil
}

// SetIdentity stores the identity, replacing any previous one.
func (s *Store) SetIdentity(ctx context.Context, id *domain.Identity) error {
	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, KeyIdentity, string(raw)); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}

// Selection returns the persisted outlet selection: the courier-view key
// first, then the admin-view key. Unreadable values count as empty.
func (s *Store) Selection(ctx context.Context) domain.ScopeSelection {
	for _, key := range []string{KeyCourierSelection, KeyAdminSelection} {
		if sel := s.readSelection(ctx, key); sel != "" {
			return sel
		}
	}
	return ""
}

func (s *Store) readSelection(ctx context.Context, key string) domain.ScopeSelection {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, port.ErrKeyNotFound) {
			s.logger.Warn("read selection failed", zap.String("key", key), zap.Error(err))
		}
		return ""
	}
	var ref domain.OutletRef
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		s.logger.Warn("stored selection is unreadable", zap.String("key", key), zap.Error(err))
		return ""
	}
	return domain.ScopeSelection(ref.ID)
}

// SetSelection persists the selection under the courier-view key.
func (s *Store) SetSelection(ctx context.Context, sel domain.ScopeSelection) error {
	raw, _ := json.Marshal(string(sel))
	if err := s.kv.Set(ctx, KeyCourierSelection, string(raw)); err != nil {
		return fmt.Errorf("write selection: %w", err)
	}
	return nil
}

// Clear removes everything the session persisted.
func (s *Store) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, KeyIdentity, KeySeenOrders, KeyCourierSelection, KeyAdminSelection)
}
