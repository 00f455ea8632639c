package domain

import "strings"

// StatusOption is a courier status value with its UI label.
type StatusOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Canonical courier statuses, in the order the dashboard offers them.
const (
	StatusAtRestaurant = "repartidor llego al restaurante"
	StatusWaiting      = "repartidor esta en espera"
	StatusEnRoute      = "repartidor va con tu pedido"
	StatusAtCustomer   = "llego el repartidor"
	StatusDelivered    = "entregado"
	StatusCancelled    = "cancelado"
	StatusRejected     = "rechazado"
)

// CanonicalStatuses is the fixed UI vocabulary.
var CanonicalStatuses = []StatusOption{
	{Value: StatusAtRestaurant, Label: "Repartidor llego al restaurante"},
	{Value: StatusWaiting, Label: "Repartidor esta en espera"},
	{Value: StatusEnRoute, Label: "Repartidor va con tu pedido"},
	{Value: StatusAtCustomer, Label: "Llego el repartidor"},
	{Value: StatusDelivered, Label: "Pedido entregado"},
	{Value: StatusCancelled, Label: "Cancelado"},
}

// ClosedStatuses are the statuses of orders shown in the closed tab.
var ClosedStatuses = map[string]struct{}{
	StatusDelivered: {},
	StatusCancelled: {},
	StatusRejected:  {},
}

// StatusOptions filters the canonical vocabulary by the statuses the
// backend reported. It falls back to the full vocabulary when the backend
// reported nothing or nothing overlaps.
func StatusOptions(available []string) []StatusOption {
	if len(available) == 0 {
		return CanonicalStatuses
	}
	set := make(map[string]struct{}, len(available))
	for _, s := range available {
		set[strings.ToLower(s)] = struct{}{}
	}
	var out []StatusOption
	for _, opt := range CanonicalStatuses {
		if _, ok := set[opt.Value]; ok {
			out = append(out, opt)
		}
	}
	if len(out) == 0 {
		return CanonicalStatuses
	}
	return out
}

// StatusLabel returns the UI label of a status, the raw value when it is
// not canonical, or "pendiente" when empty.
func StatusLabel(status string) string {
	norm := strings.ToLower(status)
	for _, opt := range CanonicalStatuses {
		if opt.Value == norm {
			return opt.Label
		}
	}
	if status == "" {
		return "pendiente"
	}
	return status
}

// StatusColor is the chip colour hint used by the view.
func StatusColor(status string) string {
	switch strings.ToLower(status) {
	case StatusDelivered:
		return "success"
	case StatusEnRoute, StatusAtCustomer, "listo":
		return "info"
	case StatusCancelled, StatusRejected:
		return "error"
	}
	return "warning"
}
