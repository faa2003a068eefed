// Package transport sends envelope requests to the sync service. It attaches
// the common metadata and session identity, encrypts marked body fields with
// the session key, decrypts marked response fields and maps every failure to
// a structured *Error.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/dmitrijs2005/liusync/internal/client/events"
	"github.com/dmitrijs2005/liusync/internal/client/metrics"
	"github.com/dmitrijs2005/liusync/internal/client/models"
	"github.com/dmitrijs2005/liusync/internal/clock"
	"github.com/dmitrijs2005/liusync/internal/common"
	"github.com/dmitrijs2005/liusync/internal/cryptox"
	"github.com/dmitrijs2005/liusync/internal/logging"
)

const (
	DefaultTimeout  = 10 * time.Second
	maxResponseSize = 8 << 20
)

// Envelope is the response shape of every call. Data has already been
// decrypted when it reaches the caller.
type Envelope struct {
	Code   string          `json:"code"`
	ErrMsg string          `json:"errMsg,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals Data into v.
func (e *Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("envelope %s: %w", e.Code, common.ErrorNotFound)
	}
	return json.Unmarshal(e.Data, v)
}

// Meta is the client description attached to every request.
type Meta struct {
	Language string
	Theme    string
	Version  string
	Timezone string
	Client   string
	Device   string
}

type Config struct {
	BaseURL  string
	Doer     Doer
	Sessions *Sessions
	Bus      *events.Bus
	Clock    clock.Clock
	Meta     Meta
	Timeout  time.Duration
	Logger   logging.Logger
	Metrics  *metrics.Metrics
}

type Transport struct {
	baseURL  string
	doer     Doer
	sessions *Sessions
	bus      *events.Bus
	clock    clock.Clock
	meta     Meta
	timeout  time.Duration
	logger   logging.Logger
	metrics  *metrics.Metrics
}

func New(cfg Config) *Transport {
	t := &Transport{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		doer:     cfg.Doer,
		sessions: cfg.Sessions,
		bus:      cfg.Bus,
		clock:    cfg.Clock,
		meta:     cfg.Meta,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
	if t.doer == nil {
		t.doer = DefaultClient()
	}
	if t.sessions == nil {
		t.sessions = NewSessions(nil)
	}
	if t.clock == nil {
		t.clock = clock.Real{}
	}
	if t.timeout <= 0 {
		t.timeout = DefaultTimeout
	}
	if t.logger == nil {
		t.logger = logging.NewDiscardLogger()
	}
	return t
}

// Sessions exposes the credential holder shared with the negotiator.
func (t *Transport) Sessions() *Sessions {
	return t.sessions
}

type sendOptions struct {
	timeout time.Duration
}

type Option func(*sendOptions)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *sendOptions) { o.timeout = d }
}

// Send posts body to path. A non-"0000" envelope is returned together with
// its *Error so callers can still inspect errMsg.
func (t *Transport) Send(ctx context.Context, path string, body map[string]any, opts ...Option) (*Envelope, error) {
	o := sendOptions{timeout: t.timeout}
	for _, opt := range opts {
		opt(&o)
	}

	env, err := t.send(ctx, path, body, o)
	code := common.CodeOK
	if err != nil {
		code = CodeOf(err)
		if code == "" {
			code = CodeClientFailure
		}
		t.logger.Warn(ctx, "request failed", "path", path, "code", code, "error", err)
	}
	t.metrics.Request(path, code)
	return env, err
}

func (t *Transport) send(ctx context.Context, path string, body map[string]any, o sendOptions) (*Envelope, error) {
	creds := t.sessions.Load()

	payload, err := t.buildBody(body, creds)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, newError(CodeClientFailure, "encode body", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, t.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, newError(CodeClientFailure, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if creds.HasIdentity() {
		req.Header.Set(common.TokenHeaderName, creds.Token)
		req.Header.Set(common.SerialHeaderName, creds.Serial)
	}

	resp, err := t.doer.Do(req)
	if err != nil {
		return nil, classifyDoError(ctx, callCtx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, classifyDoError(ctx, callCtx, err)
	}

	if env, err := t.checkStatus(ctx, resp.StatusCode, respBody); err != nil {
		return env, err
	}

	var env Envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, newError(CodeClientFailure, "malformed response", err)
	}
	if env.Code != common.CodeOK {
		if env.Code == "" {
			env.Code = CodeUnknownServer
		}
		return &env, newError(env.Code, env.ErrMsg, nil)
	}

	data, err := decryptData(env.Data, creds)
	if err != nil {
		env.Data = nil
		return nil, err
	}
	env.Data = data
	return &env, nil
}

func (t *Transport) buildBody(body map[string]any, creds *models.SessionCredentials) (map[string]any, error) {
	out := make(map[string]any, len(body)+9)
	for k, v := range body {
		if !strings.HasPrefix(k, common.PlainEncryptPrefix) {
			out[k] = v
		}
	}

	now := t.clock.Now()
	out[common.FieldLanguage] = t.meta.Language
	out[common.FieldTheme] = t.meta.Theme
	out[common.FieldVersion] = t.meta.Version
	out[common.FieldStamp] = now.UnixMilli()
	out[common.FieldTimezone] = t.timezone(now)
	out[common.FieldClient] = t.meta.Client
	out[common.FieldDevice] = t.meta.Device
	if creds.HasIdentity() {
		out[common.FieldToken] = creds.Token
		out[common.FieldSerial] = creds.Serial
	}

	for k, v := range body {
		name, ok := strings.CutPrefix(k, common.PlainEncryptPrefix)
		if !ok {
			continue
		}
		if creds == nil || creds.ClientKey == "" {
			out[name] = v
			continue
		}
		plain, err := json.Marshal(v)
		if err != nil {
			return nil, newError(CodeClientFailure, "encode "+name, err)
		}
		enc, err := cryptox.EncryptField(plain, creds.ClientKey)
		if err != nil {
			return nil, newError(CodeClientFailure, "encrypt "+name, err)
		}
		out[common.CipherPayloadPrefix+name] = enc
	}
	return out, nil
}

func (t *Transport) timezone(now time.Time) string {
	if t.meta.Timezone != "" {
		return t.meta.Timezone
	}
	_, offset := now.Zone()
	return fmt.Sprintf("%d", offset/3600)
}

// checkStatus maps non-2xx statuses. Statuses other than 401 and 5xx still
// carry the server's envelope, whose code wins over the generic C0001.
func (t *Transport) checkStatus(ctx context.Context, status int, body []byte) (*Envelope, error) {
	switch {
	case status >= 200 && status < 300:
		return nil, nil
	case status == http.StatusUnauthorized:
		if t.sessions.ClearIdentity() {
			t.logger.Info(ctx, "session rejected, identity cleared")
		}
		t.bus.Publish(ctx, events.Event{Kind: events.Relogin})
		return nil, newError(CodeUnauthorized, "session invalid", nil)
	case status == http.StatusInternalServerError:
		return nil, newError(CodeServer500, http.StatusText(status), nil)
	case status > 500:
		return nil, newError(CodeUnreachable, http.StatusText(status), nil)
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Code != "" && env.Code != common.CodeOK {
		env.Data = nil
		return &env, newError(env.Code, env.ErrMsg, nil)
	}
	return nil, newError(CodeClientFailure, fmt.Sprintf("unexpected status %d", status), nil)
}

// classifyDoError maps a failed round trip to the local taxonomy. parent is
// the caller's context, call the one carrying the per-call timeout.
func classifyDoError(parent, call context.Context, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return newError(CodeAborted, "request cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(call.Err(), context.DeadlineExceeded) {
		return newError(CodeTimeout, "request timed out", err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return newError(CodeTimeout, "request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return newError(CodeAborted, "request cancelled", err)
	}

	var dnsErr *net.DNSError
	var opErr *net.OpError
	if errors.Is(err, syscall.ECONNREFUSED) || errors.As(err, &dnsErr) ||
		(errors.As(err, &opErr) && opErr.Op == "dial") {
		return newError(CodeUnreachable, "service unreachable", err)
	}
	return newError(CodeClientFailure, "request failed", err)
}

// decryptData replaces every liu_enc_<name> field of data by its decrypted
// value under <name>. Any failure discards the payload.
func decryptData(data json.RawMessage, creds *models.SessionCredentials) (json.RawMessage, error) {
	if len(data) == 0 || data[0] != '{' {
		return data, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, newError(CodeDecrypt, "malformed data", err)
	}

	changed := false
	for k, v := range fields {
		name, ok := strings.CutPrefix(k, common.CipherPayloadPrefix)
		if !ok {
			continue
		}
		if creds == nil || creds.ClientKey == "" {
			return nil, newError(CodeDecrypt, "no session key", nil)
		}
		var enc cryptox.CipherAndIV
		if err := json.Unmarshal(v, &enc); err != nil {
			return nil, newError(CodeDecrypt, "malformed "+k, err)
		}
		plain, err := cryptox.DecryptField(enc, creds.ClientKey)
		if err != nil {
			return nil, newError(CodeDecrypt, "decrypt "+k, err)
		}
		if !json.Valid(plain) {
			return nil, newError(CodeDecrypt, "decrypted "+k+" is not json", nil)
		}
		delete(fields, k)
		fields[name] = plain
		changed = true
	}
	if !changed {
		return data, nil
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, newError(CodeDecrypt, "re-encode data", err)
	}
	return out, nil
}
