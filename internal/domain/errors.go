package domain

import "fmt"

// Error types for consistent error handling across the BFA.

// Messages shown to staff, kept in the dashboard's language.
const (
	MsgForbiddenRole   = "Tu usuario no tiene permisos para este modulo de repartidores."
	MsgRoleNoAccess    = "Tu rol actual no tiene acceso a este modulo."
	MsgLoginFailed     = "No se pudo iniciar sesion"
	MsgSelectOutlet    = "Selecciona un local para ver repartos."
	MsgOrdersFailed    = "No se pudieron cargar los repartos"
	MsgStatusFailed    = "No se pudo cambiar el estado"
	MsgAssignFailed    = "No se pudo asignar repartidor"
	MsgSessionRequired = "Sesion no encontrada o expirada"
	MsgAssignForbidden = "Solo un administrador puede asignar repartidores."
	MsgFixedOutlet     = "Tu usuario esta asignado a un local fijo."
)

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an upstream backend call.
// Message carries the backend's reported error, when it sent one.
type ErrExternalService struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *ErrExternalService) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("external service error [%s]: %s", e.Service, e.Message)
	}
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// UserMessage returns the backend message or the given fallback.
func (e *ErrExternalService) UserMessage(fallback string) string {
	if e.Message != "" {
		return e.Message
	}
	return fallback
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrForbidden indicates the role may not use the dashboard or perform the action.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return e.Action
}

// ErrUnauthorized indicates invalid credentials or session token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrScope indicates no outlet could be resolved for a selector role.
type ErrScope struct{}

func (e *ErrScope) Error() string {
	return MsgSelectOutlet
}

// ErrCommand indicates a status change or courier assignment failed.
type ErrCommand struct {
	Command string
	OrderID string
	Message string
	Err     error
}

func (e *ErrCommand) Error() string {
	return e.Message
}

func (e *ErrCommand) Unwrap() error {
	return e.Err
}
