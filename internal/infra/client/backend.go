// Package client implements the upstream delivery backend contract over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("client")

// HeaderOutletID scopes a request to one outlet for superadmin and courier roles.
const HeaderOutletID = "x-local-id"

// BackendClient calls the delivery backend REST API.
type BackendClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewBackendClient creates a new BackendClient. baseURL already includes
// the /api prefix.
func NewBackendClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *BackendClient {
	return &BackendClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		cfg:        cfg,
	}
}

// IsClientError reports whether err is a 4xx answer from the backend. The
// circuit breaker treats those as successful calls.
func IsClientError(err error) bool {
	var ext *domain.ErrExternalService
	return errors.As(err, &ext) && ext.StatusCode >= 400 && ext.StatusCode < 500
}

// call describes one upstream request.
type call struct {
	name     string // metrics/tracing label
	method   string
	path     string
	query    url.Values
	body     any
	identity *domain.Identity
	outletID string
	retry    bool
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do executes c inside the circuit breaker, retrying reads per cfg, and
// decodes a 2xx JSON body into out when out is non-nil.
func (b *BackendClient) do(ctx context.Context, c call, out any) error {
	ctx, span := tracer.Start(ctx, "BackendClient."+c.name)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", c.method),
		attribute.String("backend.path", c.path),
		attribute.String("outlet.id", c.outletID),
	)

	cfg := b.cfg
	if !c.retry {
		cfg.MaxRetries = 0
	}

	_, err := b.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, cfg, func() error {
			err := b.roundTrip(ctx, c, out)
			if IsClientError(err) {
				return resilience.Permanent(err)
			}
			return err
		})
	})
	if err == nil {
		return nil
	}

	span.RecordError(err)
	var ext *domain.ErrExternalService
	if errors.As(err, &ext) {
		return ext
	}
	if resilience.IsBreakerRejection(err) {
		return &domain.ErrExternalService{Service: c.name, Err: &domain.ErrCircuitOpen{Service: "delivery-backend"}}
	}
	return &domain.ErrExternalService{Service: c.name, Err: err}
}

func (b *BackendClient) roundTrip(ctx context.Context, c call, out any) error {
	u := b.baseURL + c.path
	if len(c.query) > 0 {
		u += "?" + c.query.Encode()
	}

	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	applyIdentity(req, c.identity, c.outletID)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		msg := eb.Error
		if msg == "" {
			msg = eb.Message
		}
		return &domain.ErrExternalService{
			Service:    c.name,
			StatusCode: resp.StatusCode,
			Message:    msg,
			Err:        fmt.Errorf("%s %s returned status %d", c.method, c.path, resp.StatusCode),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", c.path, err)
	}
	return nil
}

// applyIdentity sets the bearer token and, for roles scoped by header, the
// outlet id.
func applyIdentity(req *http.Request, id *domain.Identity, outletID string) {
	if id == nil {
		return
	}
	if id.Token != "" {
		req.Header.Set("Authorization", "Bearer "+id.Token)
	}
	if outletID != "" && id.SendsOutletHeader() {
		req.Header.Set(HeaderOutletID, outletID)
	}
}
