package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const defaultRequestTimeout = 10 * time.Second

// Backend REST surface for the session lifecycle. Business endpoints live in
// their own clients; the gateway only speaks auth.
const (
	pathDeviceValidate   = "/v1/auth/device/validate"
	pathDeviceAuthorize  = "/v1/auth/device/authorize"
	pathDeviceClear      = "/v1/auth/device"
	pathTokenStatus      = "/v1/auth/token/status"
	pathProviderExchange = "/v1/auth/provider/exchange"
)

// HTTPGateway implements AuthGateway against the PlexCash backend. It reads
// (never writes, except for the device shadow in ClearDeviceAuth) the
// session store to locate the credential each call should present.
type HTTPGateway struct {
	baseURL  string
	client   *http.Client
	store    SessionStore
	logger   Logger
	deviceID string
}

// GatewayOption customizes HTTPGateway construction.
type GatewayOption func(*HTTPGateway)

// WithGatewayLogger overrides the default logger.
func WithGatewayLogger(logger Logger) GatewayOption {
	return func(g *HTTPGateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGatewayHTTPClient overrides the HTTP client, e.g. to add the sign-out
// transport or a proxy.
func WithGatewayHTTPClient(client *http.Client) GatewayOption {
	return func(g *HTTPGateway) {
		if client != nil {
			g.client = client
		}
	}
}

// WithGatewayDeviceIdentifier pins the device identifier. Mobile shells pass
// their platform identifier here; the default derives one from the host.
func WithGatewayDeviceIdentifier(id string) GatewayOption {
	return func(g *HTTPGateway) {
		if id != "" {
			g.deviceID = id
		}
	}
}

// NewHTTPGateway builds the backend facade. The store is required: device
// and legacy calls present persisted credentials.
func NewHTTPGateway(cfg Config, store SessionStore, opts ...GatewayOption) (*HTTPGateway, error) {
	if cfg == nil || cfg.GetBaseURL() == "" {
		return nil, goerrors.New("gateway requires a base URL", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}
	if store == nil {
		return nil, goerrors.New("gateway requires a session store", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	timeout := defaultRequestTimeout
	if cfg.GetRequestTimeout() > 0 {
		timeout = time.Duration(cfg.GetRequestTimeout()) * time.Second
	}

	g := &HTTPGateway{
		baseURL:  strings.TrimRight(cfg.GetBaseURL(), "/"),
		client:   &http.Client{Timeout: timeout},
		store:    store,
		logger:   defLogger{},
		deviceID: DeviceIdentifier(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g, nil
}

// IsDeviceAuthorized is a local check by contract: no network before
// discovery knows which branch applies.
func (g *HTTPGateway) IsDeviceAuthorized(ctx context.Context) bool {
	ok, err := g.store.DeviceAuthorized(ctx)
	if err != nil {
		g.logger.Warn("device flag read failed: %v", err)
		return false
	}
	return ok
}

// ValidateDeviceAuth presents the persisted device token to the backend.
func (g *HTTPGateway) ValidateDeviceAuth(ctx context.Context) (DeviceValidation, error) {
	rec, found, err := g.store.Load(ctx)
	if err != nil || !found || rec.Token == "" {
		return DeviceValidation{}, goerrors.New("no device credential to validate", goerrors.CategoryAuth).
			WithTextCode(textCodeValidationExpired).
			WithCode(goerrors.CodeUnauthorized)
	}

	var out struct {
		Success bool `json:"success"`
		User    struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := g.doJSON(ctx, http.MethodPost, pathDeviceValidate, nil, &out, rec.Token); err != nil {
		return DeviceValidation{}, err
	}

	if !out.Success {
		return DeviceValidation{Success: false}, nil
	}
	return DeviceValidation{Success: true, Email: out.User.Email}, nil
}

// AuthorizeDevice redeems a one-time code. Codes are single use on the
// backend; the gateway does not deduplicate submissions.
func (g *HTTPGateway) AuthorizeDevice(ctx context.Context, code string) (DeviceGrant, error) {
	body := map[string]string{
		"code":     code,
		"deviceId": g.deviceID,
	}

	var out struct {
		Success  bool   `json:"success"`
		Token    string `json:"token"`
		DeviceID string `json:"deviceId"`
		Message  string `json:"message"`
		User     struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := g.doJSON(ctx, http.MethodPost, pathDeviceAuthorize, body, &out, ""); err != nil {
		return DeviceGrant{}, err
	}

	if !out.Success {
		return DeviceGrant{}, goerrors.New("device authorization rejected", goerrors.CategoryAuth).
			WithTextCode(textCodeAuthorizationReject).
			WithCode(goerrors.CodeUnauthorized).
			WithMetadata(map[string]any{"message": out.Message})
	}

	deviceID := out.DeviceID
	if deviceID == "" {
		deviceID = g.deviceID
	}

	return DeviceGrant{
		Token:    out.Token,
		DeviceID: deviceID,
		Email:    out.User.Email,
		Message:  out.Message,
	}, nil
}

// ClearDeviceAuth removes the local device shadow and tells the backend to
// revoke the grant. Local removal happens first and unconditionally:
// a dangling remote record is recoverable, a phantom local session is not.
func (g *HTTPGateway) ClearDeviceAuth(ctx context.Context) error {
	rec, _, loadErr := g.store.Load(ctx)
	if loadErr != nil {
		g.logger.Warn("device record read failed during clear: %v", loadErr)
	}

	if err := g.store.ClearMethod(ctx, MethodDevice); err != nil {
		return err
	}

	if rec.Token == "" {
		return nil
	}

	if err := g.doJSON(ctx, http.MethodDelete, pathDeviceClear, nil, nil, rec.Token); err != nil {
		g.logger.Warn("backend device revocation failed: %v", err)
		return err
	}
	return nil
}

// CheckLegacyTokenStatus asks the backend whether the persisted legacy
// token is still accepted.
func (g *HTTPGateway) CheckLegacyTokenStatus(ctx context.Context) (bool, error) {
	rec, found, err := g.store.Load(ctx)
	if err != nil || !found || rec.Token == "" {
		return false, nil
	}

	var out struct {
		Status bool `json:"status"`
	}
	if err := g.doJSON(ctx, http.MethodGet, pathTokenStatus, nil, &out, rec.Token); err != nil {
		return false, err
	}
	return out.Status, nil
}

// ExchangeProviderToken submits a federated credential for backend
// acceptance.
func (g *HTTPGateway) ExchangeProviderToken(ctx context.Context, credential string) (bool, error) {
	if credential == "" {
		return false, nil
	}

	body := map[string]string{
		"token":    credential,
		"deviceId": g.deviceID,
	}

	var out struct {
		Status bool `json:"status"`
	}
	if err := g.doJSON(ctx, http.MethodPost, pathProviderExchange, body, &out, ""); err != nil {
		return false, err
	}
	return out.Status, nil
}

func (g *HTTPGateway) DeviceIdentifier() string {
	return g.deviceID
}

func (g *HTTPGateway) doJSON(ctx context.Context, method, path string, body, out any, bearer string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := g.client.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "auth backend unreachable").
			WithTextCode(textCodeTransportFailure).
			WithCode(goerrors.CodeInternal)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read backend response").
			WithTextCode(textCodeTransportFailure).
			WithCode(goerrors.CodeInternal)
	}

	if res.StatusCode >= http.StatusInternalServerError {
		return goerrors.New("auth backend error", goerrors.CategoryOperation).
			WithTextCode(textCodeTransportFailure).
			WithCode(goerrors.CodeInternal).
			WithMetadata(map[string]any{"status": res.StatusCode})
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		g.logger.Debug("unparseable backend payload: %s", print.MaybePrettyJSON(string(raw)))
		return goerrors.Wrap(err, goerrors.CategoryOperation, "unexpected backend response").
			WithTextCode(textCodeTransportFailure).
			WithCode(goerrors.CodeInternal)
	}
	return nil
}
