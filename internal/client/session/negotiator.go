// Package session establishes and maintains the device's session with the
// sync service: the RSA handshake that delivers the client key, email-code
// login, periodic enter refreshes and logout.
package session

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/liusync/internal/client/events"
	"github.com/dmitrijs2005/liusync/internal/client/models"
	"github.com/dmitrijs2005/liusync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/liusync/internal/client/transport"
	"github.com/dmitrijs2005/liusync/internal/common"
	"github.com/dmitrijs2005/liusync/internal/cryptox"
	"github.com/dmitrijs2005/liusync/internal/logging"
)

const (
	PathLogin    = "/user-login"
	PathSettings = "/user-settings"

	sessionKey = "session"

	DefaultRefreshBefore = 24 * time.Hour
)

// Sender is the part of the transport the negotiator needs.
type Sender interface {
	Send(ctx context.Context, path string, body map[string]any, opts ...transport.Option) (*transport.Envelope, error)
}

type handshake struct {
	state     string
	publicKey *rsa.PublicKey
	clientKey string
}

type Config struct {
	Sender        Sender
	Sessions      *transport.Sessions
	Metadata      metadata.Repository
	DeviceKey     []byte
	Bus           *events.Bus
	Logger        logging.Logger
	RefreshBefore time.Duration
}

type Negotiator struct {
	sender        Sender
	sessions      *transport.Sessions
	meta          metadata.Repository
	deviceKey     []byte
	bus           *events.Bus
	logger        logging.Logger
	refreshBefore time.Duration

	mu      sync.Mutex
	pending *handshake
}

func NewNegotiator(cfg Config) *Negotiator {
	n := &Negotiator{
		sender:        cfg.Sender,
		sessions:      cfg.Sessions,
		meta:          cfg.Metadata,
		deviceKey:     cfg.DeviceKey,
		bus:           cfg.Bus,
		logger:        cfg.Logger,
		refreshBefore: cfg.RefreshBefore,
	}
	if n.logger == nil {
		n.logger = logging.NewDiscardLogger()
	}
	if n.refreshBefore <= 0 {
		n.refreshBefore = DefaultRefreshBefore
	}
	return n
}

// Negotiate parses the server's public key and generates a fresh client key
// for the pending login. Nothing is kept when the key is unusable.
func (n *Negotiator) Negotiate(ctx context.Context, publicKeyPEM string) (string, error) {
	pub, err := cryptox.ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return "", err
	}
	clientKey, err := cryptox.GenerateClientKey()
	if err != nil {
		return "", err
	}

	n.mu.Lock()
	state := ""
	if n.pending != nil {
		state = n.pending.state
	}
	n.pending = &handshake{state: state, publicKey: pub, clientKey: clientKey}
	n.mu.Unlock()

	n.logger.Debug(ctx, "handshake negotiated")
	return clientKey, nil
}

type initReply struct {
	State     string `json:"state"`
	PublicKey string `json:"publicKey"`
}

// Init asks the service for a login state and its public key, then
// negotiates.
func (n *Negotiator) Init(ctx context.Context) error {
	env, err := n.sender.Send(ctx, PathLogin, map[string]any{"operateType": "init"})
	if err != nil {
		return err
	}
	var reply initReply
	if err := env.Decode(&reply); err != nil || reply.State == "" || reply.PublicKey == "" {
		return ErrMalformedReply
	}

	n.mu.Lock()
	n.pending = &handshake{state: reply.State}
	n.mu.Unlock()

	if _, err := n.Negotiate(ctx, reply.PublicKey); err != nil {
		n.mu.Lock()
		n.pending = nil
		n.mu.Unlock()
		return fmt.Errorf("negotiate: %w", err)
	}
	return nil
}

func (n *Negotiator) current() (*handshake, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pending == nil || n.pending.publicKey == nil {
		return nil, ErrNoHandshake
	}
	h := *n.pending
	return &h, nil
}

// RequestEmailCode asks the service to mail a login code.
func (n *Negotiator) RequestEmailCode(ctx context.Context, email string) error {
	h, err := n.current()
	if err != nil {
		return err
	}
	encEmail, err := cryptox.EncryptForHandshake([]byte(email), h.publicKey)
	if err != nil {
		return err
	}
	_, err = n.sender.Send(ctx, PathLogin, map[string]any{
		"operateType": "email",
		"enc_email":   encEmail,
		"state":       h.state,
	})
	return err
}

type loginReply struct {
	UserID   string `json:"userId"`
	Token    string `json:"token"`
	SerialID string `json:"serial_id"`
}

// LoginWithEmailCode completes the login and installs the new session.
func (n *Negotiator) LoginWithEmailCode(ctx context.Context, email, code string) (*models.SessionCredentials, error) {
	h, err := n.current()
	if err != nil {
		return nil, err
	}
	encEmail, err := cryptox.EncryptForHandshake([]byte(email), h.publicKey)
	if err != nil {
		return nil, err
	}
	encClientKey, err := cryptox.EncryptForHandshake([]byte(h.clientKey), h.publicKey)
	if err != nil {
		return nil, err
	}

	env, err := n.sender.Send(ctx, PathLogin, map[string]any{
		"operateType":    "email_code",
		"enc_email":      encEmail,
		"email_code":     code,
		"state":          h.state,
		"enc_client_key": encClientKey,
	})
	if err != nil {
		return nil, err
	}
	var reply loginReply
	if err := env.Decode(&reply); err != nil || reply.Token == "" || reply.SerialID == "" {
		return nil, ErrMalformedReply
	}

	creds := &models.SessionCredentials{
		UserID:    reply.UserID,
		ClientKey: h.clientKey,
		Token:     reply.Token,
		Serial:    reply.SerialID,
		PublicKey: h.publicKey,
	}
	n.sessions.Store(creds)

	n.mu.Lock()
	n.pending = nil
	n.mu.Unlock()

	if err := n.Persist(ctx); err != nil {
		n.logger.Error(ctx, "persist session", "error", err)
	}
	n.logger.Info(ctx, "logged in", "user", reply.UserID)
	n.bus.Publish(ctx, events.Event{Kind: events.Login, UserID: reply.UserID})
	return creds, nil
}

type enterReply struct {
	NewToken  string `json:"new_token"`
	NewSerial string `json:"new_serial"`
}

// Enter refreshes token and serial. The client key never changes.
func (n *Negotiator) Enter(ctx context.Context) error {
	cur := n.sessions.Load()
	if !cur.HasIdentity() {
		return common.ErrNoSession
	}

	env, err := n.sender.Send(ctx, PathSettings, map[string]any{"operateType": "enter"})
	if err != nil {
		return err
	}
	var reply enterReply
	if err := env.Decode(&reply); err != nil {
		// enter without a rotation is fine
		return nil
	}
	if reply.NewToken == "" || reply.NewSerial == "" {
		return nil
	}

	n.sessions.Store(cur.WithIdentity(reply.NewToken, reply.NewSerial))
	if err := n.Persist(ctx); err != nil {
		n.logger.Error(ctx, "persist session", "error", err)
	}
	n.logger.Debug(ctx, "session rotated")
	return nil
}

// Logout tells the service, best effort, then forgets the session.
func (n *Negotiator) Logout(ctx context.Context) error {
	cur := n.sessions.Load()
	if cur == nil {
		return ErrAlreadyLoggedOut
	}
	if cur.HasIdentity() {
		if _, err := n.sender.Send(ctx, PathSettings, map[string]any{"operateType": "logout"}); err != nil {
			n.logger.Warn(ctx, "logout call failed", "error", err)
		}
	}

	n.sessions.Clear()
	if n.meta != nil {
		if err := n.meta.Delete(ctx, sessionKey); err != nil {
			return err
		}
	}
	n.bus.Publish(ctx, events.Event{Kind: events.Logout, UserID: cur.UserID})
	return nil
}

// Persist seals the current session into the metadata store, or removes it
// when there is none.
func (n *Negotiator) Persist(ctx context.Context) error {
	if n.meta == nil || len(n.deviceKey) == 0 {
		return nil
	}
	cur := n.sessions.Load()
	if cur == nil {
		return n.meta.Delete(ctx, sessionKey)
	}
	return metadata.SaveSealed(ctx, n.meta, sessionKey, cur, n.deviceKey)
}

// Restore loads a sealed session from the metadata store. It reports whether
// a session with a live identity was found.
func (n *Negotiator) Restore(ctx context.Context) (bool, error) {
	if n.meta == nil || len(n.deviceKey) == 0 {
		return false, nil
	}
	var creds models.SessionCredentials
	ok, err := metadata.LoadSealed(ctx, n.meta, sessionKey, n.deviceKey, &creds)
	if err != nil || !ok {
		return false, err
	}
	n.sessions.Store(&creds)
	return creds.HasIdentity(), nil
}

// NeedsRefresh reports whether the token expires within the refresh margin.
// Opaque tokens and tokens without exp never need a refresh.
func (n *Negotiator) NeedsRefresh(now time.Time) bool {
	cur := n.sessions.Load()
	if !cur.HasIdentity() {
		return false
	}
	exp, err := tokenExpiry(cur.Token)
	if err != nil {
		return false
	}
	return !now.Add(n.refreshBefore).Before(exp)
}

// tokenExpiry reads exp without verifying the signature; only the service
// can verify its tokens.
func tokenExpiry(token string) (time.Time, error) {
	parsed, _, err := gojwt.NewParser().ParseUnverified(token, gojwt.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if exp == nil {
		return time.Time{}, errors.New("token has no exp")
	}
	return exp.Time, nil
}
