package models

import "crypto/rsa"

// SessionCredentials is the device's session identity. Instances are never
// mutated after creation; refreshes produce a new value.
type SessionCredentials struct {
	UserID    string         `json:"userId"`
	ClientKey string         `json:"client_key"`
	Token     string         `json:"token"`
	Serial    string         `json:"serial"`
	PublicKey *rsa.PublicKey `json:"-"`
}

// HasIdentity reports whether token and serial are both present.
func (s *SessionCredentials) HasIdentity() bool {
	return s != nil && s.Token != "" && s.Serial != ""
}

// WithIdentity returns a copy carrying a new token and serial and the same
// client key.
func (s SessionCredentials) WithIdentity(token, serial string) *SessionCredentials {
	s.Token = token
	s.Serial = serial
	return &s
}

// WithoutIdentity returns a copy with token and serial cleared. The client
// key stays so the device can still read cached encrypted data.
func (s SessionCredentials) WithoutIdentity() *SessionCredentials {
	s.Token = ""
	s.Serial = ""
	return &s
}
