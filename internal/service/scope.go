package service

import (
	"github.com/boddenberg/repartos-bfa-go/internal/domain"
)

// ScopeResolver decides which outlet(s) a fetch cycle targets. It is a pure
// function of its inputs; persisting the default is left to the caller.
type ScopeResolver struct{}

// Resolve returns the decision for an identity, the outlets known so far
// (nil while they are still loading) and the persisted selection.
//
// The returned selection is the one in effect after resolution. persist is
// true only when the all-outlets default was just applied because nothing
// had been selected yet; the caller must store it right away.
func (ScopeResolver) Resolve(id *domain.Identity, outlets []domain.Outlet, sel domain.ScopeSelection) (decision domain.ScopeDecision, effective domain.ScopeSelection, persist bool) {
	if id == nil {
		return domain.Unresolved(), "", false
	}
	if !id.RequiresSelector() {
		return domain.SingleOutlet(id.OutletID()), "", false
	}

	if sel == "" {
		ids := outletIDs(outlets)
		if len(ids) == 0 {
			return domain.Unresolved(), "", false
		}
		return domain.AllOutletsDecision(ids), domain.AllOutlets, true
	}

	if sel.IsAll() {
		ids := outletIDs(outlets)
		if len(ids) == 0 {
			return domain.Unresolved(), sel, false
		}
		return domain.AllOutletsDecision(ids), sel, false
	}

	return domain.SingleOutlet(string(sel)), sel, false
}

// Select validates an explicit choice made by the user.
func (ScopeResolver) Select(id *domain.Identity, outlets []domain.Outlet, sel domain.ScopeSelection) error {
	if id == nil || !id.RequiresSelector() {
		return &domain.ErrForbidden{Action: domain.MsgFixedOutlet}
	}
	if sel == "" {
		return &domain.ErrValidation{Field: "outletId", Message: "local requerido"}
	}
	if sel.IsAll() || outlets == nil {
		return nil
	}
	for _, o := range outlets {
		if o.ID == string(sel) {
			return nil
		}
	}
	return &domain.ErrValidation{Field: "outletId", Message: "local desconocido: " + string(sel)}
}

func outletIDs(outlets []domain.Outlet) []string {
	ids := make([]string, 0, len(outlets))
	for _, o := range outlets {
		if o.ID != "" {
			ids = append(ids, o.ID)
		}
	}
	return ids
}
