package domain

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ============================================================
// Scope: which outlet(s) a fetch cycle targets
// ============================================================

// AllOutlets is the selection sentinel meaning "fan out to every outlet".
const AllOutlets = "__all__"

// ScopeSelection is the persisted outlet choice of a selector role: an
// outlet id, AllOutlets, or "" when nothing was chosen yet.
type ScopeSelection string

// IsAll reports whether the selection is the all-outlets sentinel.
func (s ScopeSelection) IsAll() bool { return s == AllOutlets }

// ScopeKind discriminates a ScopeDecision.
type ScopeKind string

const (
	ScopeUnresolved ScopeKind = "unresolved"
	ScopeSingle     ScopeKind = "single"
	ScopeAll        ScopeKind = "all"
)

// ScopeDecision is the outcome of scope resolution.
//
// For ScopeSingle, OutletIDs holds exactly one id, which is "" when the role
// is bound to its outlet through the token (no x-local-id header is sent).
type ScopeDecision struct {
	Kind      ScopeKind `json:"kind"`
	OutletIDs []string  `json:"outletIds,omitempty"`
}

// SingleOutlet builds a single-outlet decision.
func SingleOutlet(id string) ScopeDecision {
	return ScopeDecision{Kind: ScopeSingle, OutletIDs: []string{id}}
}

// AllOutletsDecision builds a fan-out decision.
func AllOutletsDecision(ids []string) ScopeDecision {
	return ScopeDecision{Kind: ScopeAll, OutletIDs: ids}
}

// Unresolved is the decision that blocks fetching.
func Unresolved() ScopeDecision {
	return ScopeDecision{Kind: ScopeUnresolved}
}

// OutletID returns the single outlet id (or "").
func (d ScopeDecision) OutletID() string {
	if d.Kind != ScopeSingle || len(d.OutletIDs) == 0 {
		return ""
	}
	return d.OutletIDs[0]
}

// Equal compares two decisions.
func (d ScopeDecision) Equal(o ScopeDecision) bool {
	if d.Kind != o.Kind || len(d.OutletIDs) != len(o.OutletIDs) {
		return false
	}
	for i := range d.OutletIDs {
		if d.OutletIDs[i] != o.OutletIDs[i] {
			return false
		}
	}
	return true
}

func (d ScopeDecision) String() string {
	if d.Kind == ScopeUnresolved {
		return string(d.Kind)
	}
	return fmt.Sprintf("%s(%s)", d.Kind, strings.Join(d.OutletIDs, ","))
}

// ============================================================
// Month filter
// ============================================================

// MonthFilter is the year/month pair sent as anio/mes. Components that do not
// parse are NaN and are passed upstream unmodified.
type MonthFilter struct {
	Year  float64
	Month float64
}

// ParseMonth parses a "YYYY-MM" value. Nothing is validated: "2024-03"
// yields {2024, 3}, "" yields {NaN, NaN}.
func ParseMonth(value string) MonthFilter {
	parts := strings.SplitN(value, "-", 2)
	f := MonthFilter{Year: math.NaN(), Month: math.NaN()}
	if len(parts) > 0 {
		f.Year = parseComponent(parts[0])
	}
	if len(parts) > 1 {
		f.Month = parseComponent(parts[1])
	}
	return f
}

func parseComponent(s string) float64 {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return math.NaN()
	}
	return float64(n)
}

// CurrentMonth returns the "YYYY-MM" value of t.
func CurrentMonth(t time.Time) string {
	return t.Format("2006-01")
}

// Valid reports whether both components parsed.
func (m MonthFilter) Valid() bool {
	return !math.IsNaN(m.Year) && !math.IsNaN(m.Month)
}

// Values encodes the filter as anio/mes query parameters.
func (m MonthFilter) Values() url.Values {
	v := url.Values{}
	v.Set("anio", formatComponent(m.Year))
	v.Set("mes", formatComponent(m.Month))
	return v
}

func formatComponent(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (m MonthFilter) String() string {
	return formatComponent(m.Year) + "-" + formatComponent(m.Month)
}
