package service

import (
	"errors"
	"strings"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"
)

// ============================================================
// Settled results: one per request, success or failure
// ============================================================

// settled holds the outcome of one request of a cycle. A failure never
// affects its siblings.
type settled[T any] struct {
	value T
	err   error
}

func settle[T any](value T, err error) settled[T] {
	return settled[T]{value: value, err: err}
}

func (s settled[T]) ok() bool { return s.err == nil }

// outletBatch is the four reads of one outlet.
type outletBatch struct {
	outlet   domain.Outlet
	orders   settled[[]domain.Order]
	summary  settled[*domain.Summary]
	couriers settled[[]domain.Courier]
	statuses settled[[]string]
}

func (b outletBatch) anyFailed() bool {
	return !b.orders.ok() || !b.summary.ok() || !b.couriers.ok() || !b.statuses.ok()
}

// failedBatch is a batch whose reads never ran.
func failedBatch(outlet domain.Outlet, err error) outletBatch {
	return outletBatch{
		outlet:   outlet,
		orders:   settled[[]domain.Order]{err: err},
		summary:  settled[*domain.Summary]{err: err},
		couriers: settled[[]domain.Courier]{err: err},
		statuses: settled[[]string]{err: err},
	}
}

// cycleResult is what a cycle applies to the engine state.
type cycleResult struct {
	orders   []domain.Order
	summary  domain.Summary
	couriers []domain.Courier
	statuses []string
	// errMessage is the user-visible banner, "" when none.
	errMessage string
	err        error
	// failed counts outlets whose orders request failed.
	failed int
	// partial is set when any read of the cycle failed.
	partial bool
}

// ============================================================
// Merge rules
// ============================================================

// mergeSingle applies a single-outlet batch: failed reads fall back to empty
// values and a failed orders read surfaces the server's message.
func mergeSingle(b outletBatch) cycleResult {
	res := cycleResult{
		orders:   []domain.Order{},
		couriers: []domain.Courier{},
		statuses: []string{},
	}
	if b.orders.ok() {
		if b.orders.value != nil {
			res.orders = b.orders.value
		}
	} else {
		res.failed = 1
		res.err = b.orders.err
		res.errMessage = ordersFailureMessage(b.orders.err)
	}
	res.partial = b.anyFailed()
	if b.summary.ok() && b.summary.value != nil {
		res.summary = *b.summary.value
	}
	if b.couriers.ok() && b.couriers.value != nil {
		res.couriers = b.couriers.value
	}
	if b.statuses.ok() {
		res.statuses = lowerAll(b.statuses.value)
	}
	return res
}

// mergeAll folds the per-outlet batches of a fan-out cycle. Orders are
// concatenated and tagged with their outlet, summaries summed, couriers
// unioned by id (first seen wins) and statuses unioned case-insensitively.
// An error is surfaced only when every outlet's orders read failed.
func mergeAll(batches []outletBatch) cycleResult {
	res := cycleResult{
		orders:   []domain.Order{},
		couriers: []domain.Courier{},
		statuses: []string{},
	}
	seenCouriers := map[string]struct{}{}
	seenStatuses := map[string]struct{}{}
	var lastErr error

	for _, b := range batches {
		if b.orders.ok() {
			name := b.outlet.Name
			if name == "" {
				name = "Local"
			}
			for _, o := range b.orders.value {
				o.OutletID = b.outlet.ID
				o.OutletName = name
				res.orders = append(res.orders, o)
			}
		} else {
			res.failed++
			lastErr = b.orders.err
		}
		if b.anyFailed() {
			res.partial = true
		}
		if b.summary.ok() && b.summary.value != nil {
			res.summary = res.summary.Add(*b.summary.value)
		}
		if b.couriers.ok() {
			for _, c := range b.couriers.value {
				if c.ID == "" {
					continue
				}
				if _, dup := seenCouriers[c.ID]; dup {
					continue
				}
				seenCouriers[c.ID] = struct{}{}
				res.couriers = append(res.couriers, c)
			}
		}
		if b.statuses.ok() {
			for _, s := range b.statuses.value {
				s = strings.ToLower(s)
				if _, dup := seenStatuses[s]; dup {
					continue
				}
				seenStatuses[s] = struct{}{}
				res.statuses = append(res.statuses, s)
			}
		}
	}

	if len(batches) > 0 && res.failed == len(batches) {
		res.err = lastErr
		res.errMessage = ordersFailureMessage(lastErr)
	}
	return res
}

func ordersFailureMessage(err error) string {
	var ext *domain.ErrExternalService
	if errors.As(err, &ext) {
		return ext.UserMessage(domain.MsgOrdersFailed)
	}
	return domain.MsgOrdersFailed
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}

// newOrderCandidate returns the most recent open order not yet seen.
func newOrderCandidate(orders []domain.Order, seen func(string) bool) *domain.Order {
	open := domain.FilterTab(orders, domain.TabOpen)
	domain.SortByDateDesc(open)
	for i := range open {
		if open[i].ID != "" && !seen(open[i].ID) {
			return &open[i]
		}
	}
	return nil
}
