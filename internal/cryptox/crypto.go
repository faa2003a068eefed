// Package cryptox holds the cryptographic primitives of the sync engine:
// the per-field AES-GCM cipher keyed by the session client key, the RSA-OAEP
// handshake used before a session exists, and local sealing of key material
// kept on the device.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/liusync/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// ClientKeySize is the length of the raw AES-256 session key.
	ClientKeySize = 32

	// FieldIVSize is the GCM nonce length used on the wire. Peers expect 16 bytes.
	FieldIVSize = 16

	localNonceSize = 12
)

var (
	ErrDecrypt          = errors.New("decrypt failed")
	ErrInvalidKey       = errors.New("invalid client key")
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// CipherAndIV is an encrypted field as it travels in a request or response body.
type CipherAndIV struct {
	CipherText string `json:"cipherText"`
	IV         string `json:"iv"`
}

// GenerateClientKey returns a fresh base64 encoded AES-256 key.
func GenerateClientKey() (string, error) {
	key := make([]byte, ClientKeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate client key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func fieldAEAD(key string) (cipher.AEAD, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(raw) != ClientKeySize {
		return nil, ErrInvalidKey
	}
	defer common.WipeByteArray(raw)

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return cipher.NewGCMWithNonceSize(block, FieldIVSize)
}

// EncryptField encrypts plainText with the base64 session key using
// AES-256-GCM. Every call draws a new IV from crypto/rand.
func EncryptField(plainText []byte, key string) (CipherAndIV, error) {
	aead, err := fieldAEAD(key)
	if err != nil {
		return CipherAndIV{}, err
	}

	iv := make([]byte, FieldIVSize)
	if _, err := rand.Read(iv); err != nil {
		return CipherAndIV{}, fmt.Errorf("generate iv: %w", err)
	}

	sealed := aead.Seal(nil, iv, plainText, nil)
	return CipherAndIV{
		CipherText: base64.StdEncoding.EncodeToString(sealed),
		IV:         base64.StdEncoding.EncodeToString(iv),
	}, nil
}

// DecryptField reverses EncryptField. A wrong key, a tampered ciphertext or
// malformed base64 all yield ErrDecrypt; partial plaintext is never returned.
func DecryptField(data CipherAndIV, key string) ([]byte, error) {
	aead, err := fieldAEAD(key)
	if err != nil {
		return nil, err
	}

	iv, err := base64.StdEncoding.DecodeString(data.IV)
	if err != nil || len(iv) != FieldIVSize {
		return nil, ErrDecrypt
	}
	sealed, err := base64.StdEncoding.DecodeString(data.CipherText)
	if err != nil {
		return nil, ErrDecrypt
	}

	plain, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}

// ParsePublicKeyPEM parses an SPKI ("BEGIN PUBLIC KEY") RSA public key.
// Anything else, including EC keys, is rejected.
func ParsePublicKeyPEM(s string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, ErrInvalidPublicKey
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported key type %T", ErrInvalidPublicKey, pub)
	}
	return rsaPub, nil
}

// EncryptForHandshake encrypts a pre-session login field with RSA-OAEP/SHA-256
// and returns it base64 encoded.
func EncryptForHandshake(plainText []byte, pub *rsa.PublicKey) (string, error) {
	if pub == nil {
		return "", ErrInvalidPublicKey
	}
	out, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plainText, nil)
	if err != nil {
		return "", fmt.Errorf("rsa encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// DeriveDeviceKey stretches a device secret into a 32-byte key for sealing
// credentials at rest.
func DeriveDeviceKey(secret []byte, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, 32)
}

// SealLocal serializes v to JSON and encrypts it with AES-GCM under key.
// A new 12-byte nonce is generated for each call.
func SealLocal(v any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	defer common.WipeByteArray(plaintext)

	nonce = make([]byte, localNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	return aesgcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// OpenLocal decrypts data produced by SealLocal and unmarshals it into v.
func OpenLocal(ciphertext, nonce, key []byte, v any) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}

	if len(nonce) != aesgcm.NonceSize() {
		return ErrDecrypt
	}
	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return ErrDecrypt
	}
	defer common.WipeByteArray(plaintext)

	return json.Unmarshal(plaintext, v)
}
