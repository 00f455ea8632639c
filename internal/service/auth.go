// Package service holds the dashboard use cases: staff sessions, scope
// resolution, the refresh engine and its poller, and order commands.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/kvstore"
	"github.com/boddenberg/repartos-bfa-go/internal/port"
	"github.com/boddenberg/repartos-bfa-go/internal/session"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var authTracer = otel.Tracer("service/auth")

const sessionNamespace = "session:"

// Session is one logged-in dashboard: its id and persisted state.
type Session struct {
	ID       string
	Identity *domain.Identity
	Store    *session.Store
}

// AuthService orchestrates login, session lookup and logout.
type AuthService struct {
	backend    port.Authenticator
	kv         port.KVStore
	jwtSecret  []byte
	sessionTTL time.Duration
	logger     *zap.Logger
}

// NewAuthService creates a new auth service. kv is the shared preferences
// store; each session gets its own namespace in it.
func NewAuthService(backend port.Authenticator, kv port.KVStore, jwtSecret string, sessionTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		backend:    backend,
		kv:         kv,
		jwtSecret:  []byte(jwtSecret),
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

// ============================================================
// Login: POST /v1/auth/login
// ============================================================

// Login authenticates upstream. Roles outside admin, superadmin and
// repartidor are rejected before any session state is written.
func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	if req.Email == "" || req.Password == "" {
		return nil, &domain.ErrValidation{Field: "email", Message: "email y password son obligatorios"}
	}

	identity, err := s.backend.Login(ctx, req)
	if err != nil {
		var ext *domain.ErrExternalService
		if errors.As(err, &ext) && (ext.StatusCode == http.StatusUnauthorized || ext.StatusCode == http.StatusBadRequest || ext.StatusCode == http.StatusNotFound) {
			return nil, &domain.ErrUnauthorized{Message: ext.UserMessage(domain.MsgLoginFailed)}
		}
		return nil, fmt.Errorf("backend login: %w", err)
	}
	span.SetAttributes(attribute.String("role", string(identity.Role)))

	if !identity.Role.Allowed() {
		s.logger.Warn("login: role not allowed",
			zap.String("email", req.Email),
			zap.String("role", string(identity.Role)),
		)
		return nil, &domain.ErrForbidden{Action: domain.MsgForbiddenRole}
	}
	if identity.Email == "" {
		identity.Email = req.Email
	}

	sessionID := uuid.NewString()
	store := s.storeFor(sessionID)
	if err := store.SetIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("store identity: %w", err)
	}

	token, err := s.signSessionToken(sessionID, identity.Role)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	s.logger.Info("staff logged in",
		zap.String("session_id", sessionID),
		zap.String("role", string(identity.Role)),
		zap.String("outlet_id", identity.OutletID()),
	)

	return &domain.LoginResponse{
		Token:     token,
		ExpiresIn: int(s.sessionTTL.Seconds()),
		SessionID: sessionID,
		User:      domain.NewUserView(identity),
	}, nil
}

// ============================================================
// Sessions
// ============================================================

// Authenticate validates a session token and returns its session id.
func (s *AuthService) Authenticate(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", &domain.ErrUnauthorized{Message: domain.MsgSessionRequired}
	}
	return claims.Subject, nil
}

// Session restores a session from the preferences store. A session whose
// stored role is no longer allowed is refused.
func (s *AuthService) Session(ctx context.Context, sessionID string) (*Session, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Session")
	defer span.End()

	store := s.storeFor(sessionID)
	identity, err := store.Identity(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if identity == nil {
		return nil, &domain.ErrUnauthorized{Message: domain.MsgSessionRequired}
	}
	if !identity.Role.Allowed() {
		return nil, &domain.ErrForbidden{Action: domain.MsgRoleNoAccess}
	}
	return &Session{ID: sessionID, Identity: identity, Store: store}, nil
}

// Logout removes everything the session persisted: identity, selections
// and the seen-orders ledger.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	if err := s.storeFor(sessionID).Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.logger.Info("staff logged out", zap.String("session_id", sessionID))
	return nil
}

func (s *AuthService) storeFor(sessionID string) *session.Store {
	return session.NewStore(kvstore.WithNamespace(s.kv, sessionNamespace+sessionID), s.logger)
}

func (s *AuthService) signSessionToken(sessionID string, role domain.Role) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.sessionTTL)),
			Issuer:    "repartos-bfa",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

type sessionClaims struct {
	Role string `json:"rol"`
	jwt.RegisteredClaims
}
