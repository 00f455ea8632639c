// Package domain defines the delivery dashboard entities. These models mirror
// the upstream delivery backend's JSON contract and are shared by every layer
// of the BFA.
package domain

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Outlets, couriers and orders (upstream /ventasCliente/local)
// ============================================================

// Outlet is a physical location ("local") scoping orders and couriers.
type Outlet struct {
	ID   string `json:"_id"`
	Name string `json:"nombre"`
}

// Courier is a delivery person as listed by the backend.
type Courier struct {
	ID    string `json:"_id"`
	Name  string `json:"nombre,omitempty"`
	Email string `json:"email,omitempty"`
}

// DisplayName returns the name or, failing that, the email.
func (c Courier) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Email
}

// FlexString decodes a JSON string or number into a string.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// Timestamp is a lenient order date. Values that fail to parse decode to
// the zero time, which sorts last in date-descending order.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	t.Time = time.Time{}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time)
}

// LineItem is one product of an order ("productos").
type LineItem struct {
	Name        string          `json:"nombre,omitempty"`
	Quantity    int             `json:"cantidad,omitempty"`
	Price       decimal.Decimal `json:"precio"`
	Observation string          `json:"observacion,omitempty"`
}

// Order is a delivery order as returned by GET /ventasCliente/local/pedidos.
// OutletID and OutletName are tagged by the BFA when the order was fetched
// for a specific outlet.
type Order struct {
	ID              string          `json:"_id"`
	Number          FlexString      `json:"numero_pedido,omitempty"`
	Date            Timestamp       `json:"fecha"`
	CustomerName    string          `json:"cliente_nombre,omitempty"`
	CustomerPhone   string          `json:"cliente_telefono,omitempty"`
	DeliveryAddress string          `json:"cliente_direccion,omitempty"`
	Total           decimal.Decimal `json:"total"`
	Status          string          `json:"estado_pedido,omitempty"`
	Courier         *Courier        `json:"repartidor_asignado,omitempty"`
	LineItems       []LineItem      `json:"productos,omitempty"`
	Outlet          *OutletRef      `json:"local,omitempty"`
	OutletID        string          `json:"localId,omitempty"`
	OutletName      string          `json:"localNombre,omitempty"`
}

var deliveryObservation = regexp.MustCompile(`(?i)delivery:\s*([^|]+)`)

// Address returns the delivery address, falling back to the first
// "delivery: <address>" observation found in the line items.
func (o *Order) Address() string {
	if addr := strings.TrimSpace(o.DeliveryAddress); addr != "" {
		return addr
	}
	for _, item := range o.LineItems {
		if m := deliveryObservation.FindStringSubmatch(item.Observation); len(m) > 1 {
			if addr := strings.TrimSpace(m[1]); addr != "" {
				return addr
			}
		}
	}
	return "-"
}

// DisplayNumber is the order number, or the last 6 chars of its id.
func (o *Order) DisplayNumber() string {
	if o.Number != "" {
		return string(o.Number)
	}
	if len(o.ID) > 6 {
		return o.ID[len(o.ID)-6:]
	}
	return o.ID
}

// NormalizedStatus is the lower-cased status.
func (o *Order) NormalizedStatus() string {
	return strings.ToLower(o.Status)
}

// IsOpen reports whether the order is neither delivered, cancelled nor rejected.
func (o *Order) IsOpen() bool {
	_, closed := ClosedStatuses[o.NormalizedStatus()]
	return !closed
}

// SourceOutletID is the outlet the order belongs to: the tag set during
// fetch, else the order's own outlet reference.
func (o *Order) SourceOutletID() string {
	if o.OutletID != "" {
		return o.OutletID
	}
	if o.Outlet != nil {
		return o.Outlet.ID
	}
	return ""
}

// Summary holds the delivery counters for the selected month.
type Summary struct {
	TotalLifetime           int `json:"totalHistorico"`
	TotalThisMonth          int `json:"totalMes"`
	TotalDeliveredThisMonth int `json:"totalMesEntregados"`
}

// Add sums two summaries.
func (s Summary) Add(o Summary) Summary {
	return Summary{
		TotalLifetime:           s.TotalLifetime + o.TotalLifetime,
		TotalThisMonth:          s.TotalThisMonth + o.TotalThisMonth,
		TotalDeliveredThisMonth: s.TotalDeliveredThisMonth + o.TotalDeliveredThisMonth,
	}
}

// StatusUpdate is the body of PATCH /pedidos/:id/estado.
type StatusUpdate struct {
	Status string `json:"estado"`
	Note   string `json:"nota"`
}

// CourierAssignment is the body of PATCH /pedidos/:id/repartidor. A nil
// CourierID is sent as JSON null and clears the assignment.
type CourierAssignment struct {
	CourierID *string `json:"repartidor_id"`
}
