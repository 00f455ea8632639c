package domain

import (
	"bytes"
	"encoding/json"
)

// ============================================================
// Auth: Identity returned by the delivery backend
// ============================================================

// Role is the backend role ("rol") of an authenticated staff member.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
	RoleCourier    Role = "repartidor"
)

// Allowed reports whether the role may use the delivery dashboard.
func (r Role) Allowed() bool {
	switch r {
	case RoleAdmin, RoleSuperadmin, RoleCourier:
		return true
	}
	return false
}

// OutletRef is the "local" field of an identity or order. The backend sends
// either a bare id string or a populated {_id, nombre} object.
type OutletRef struct {
	ID   string `json:"_id"`
	Name string `json:"nombre,omitempty"`
}

func (o *OutletRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*o = OutletRef{ID: id}
		return nil
	}
	type plain OutletRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*o = OutletRef(p)
	return nil
}

// Identity is the authenticated staff member as returned by POST /auth/login.
// It is persisted as-is under the identity key of the session store.
type Identity struct {
	Token  string     `json:"token"`
	Role   Role       `json:"rol"`
	Outlet *OutletRef `json:"local,omitempty"`
	Name   string     `json:"nombre,omitempty"`
	Email  string     `json:"email,omitempty"`
}

// OutletID returns the outlet the identity is bound to, or "".
func (i *Identity) OutletID() string {
	if i == nil || i.Outlet == nil {
		return ""
	}
	return i.Outlet.ID
}

// IsAdminTier reports whether the identity may see and assign couriers.
func (i *Identity) IsAdminTier() bool {
	return i != nil && (i.Role == RoleAdmin || i.Role == RoleSuperadmin)
}

// RequiresSelector reports whether the identity is scope-ambiguous and must
// pick an outlet (or all outlets) before data can be fetched.
func (i *Identity) RequiresSelector() bool {
	if i == nil {
		return false
	}
	return i.Role == RoleSuperadmin || (i.Role == RoleCourier && i.OutletID() == "")
}

// SendsOutletHeader reports whether upstream requests carry x-local-id.
// Admins are scoped by their token on the backend side.
func (i *Identity) SendsOutletHeader() bool {
	return i != nil && (i.Role == RoleSuperadmin || i.Role == RoleCourier)
}

// DisplayName is the name shown in the dashboard header.
func (i *Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Email
}

// LoginRequest is the body for POST /v1/auth/login (forwarded upstream).
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the body for 200 from POST /v1/auth/login.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresIn int       `json:"expiresIn"`
	SessionID string    `json:"sessionId"`
	User      *UserView `json:"usuario"`
}

// UserView is the identity without its upstream token.
type UserView struct {
	Name             string `json:"nombre"`
	Email            string `json:"email,omitempty"`
	Role             Role   `json:"rol"`
	OutletID         string `json:"localId,omitempty"`
	RequiresSelector bool   `json:"requiereSelectorLocal"`
	IsAdmin          bool   `json:"esAdmin"`
}

// NewUserView projects an identity for the browser.
func NewUserView(id *Identity) *UserView {
	return &UserView{
		Name:             id.DisplayName(),
		Email:            id.Email,
		Role:             id.Role,
		OutletID:         id.OutletID(),
		RequiresSelector: id.RequiresSelector(),
		IsAdmin:          id.IsAdminTier(),
	}
}
