package cryptox

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) string {
	t.Helper()
	k, err := GenerateClientKey()
	require.NoError(t, err)
	return k
}

func TestGenerateClientKey_Size(t *testing.T) {
	k := newKey(t)
	raw, err := base64.StdEncoding.DecodeString(k)
	require.NoError(t, err)
	assert.Len(t, raw, ClientKeySize)
	assert.NotEqual(t, k, newKey(t))
}

func TestEncryptDecryptField_RoundTrip(t *testing.T) {
	key := newKey(t)
	inputs := [][]byte{
		[]byte(""),
		[]byte("hello"),
		[]byte(`{"atoms":[{"taskId":"1"}]}`),
		[]byte("多字节文本 with unicode"),
	}
	for _, p := range inputs {
		enc, err := EncryptField(p, key)
		require.NoError(t, err)

		iv, err := base64.StdEncoding.DecodeString(enc.IV)
		require.NoError(t, err)
		assert.Len(t, iv, FieldIVSize)

		got, err := DecryptField(enc, key)
		require.NoError(t, err)
		assert.Equal(t, string(p), string(got))
	}
}

func TestEncryptField_FreshIVPerCall(t *testing.T) {
	key := newKey(t)
	seen := map[string]struct{}{}
	for i := 0; i < 64; i++ {
		enc, err := EncryptField([]byte("same"), key)
		require.NoError(t, err)
		_, dup := seen[enc.IV]
		require.False(t, dup, "iv reused")
		seen[enc.IV] = struct{}{}
	}
}

func TestDecryptField_WrongKeyFails(t *testing.T) {
	enc, err := EncryptField([]byte("secret"), newKey(t))
	require.NoError(t, err)

	got, err := DecryptField(enc, newKey(t))
	require.ErrorIs(t, err, ErrDecrypt)
	assert.Nil(t, got)
}

func TestDecryptField_TamperedFails(t *testing.T) {
	key := newKey(t)
	enc, err := EncryptField([]byte("secret"), key)
	require.NoError(t, err)

	raw, _ := base64.StdEncoding.DecodeString(enc.CipherText)
	raw[0] ^= 0xff
	enc.CipherText = base64.StdEncoding.EncodeToString(raw)

	_, err = DecryptField(enc, key)
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptField_MalformedInput(t *testing.T) {
	key := newKey(t)
	tests := []struct {
		name string
		in   CipherAndIV
	}{
		{"bad iv base64", CipherAndIV{CipherText: "AAAA", IV: "%%%"}},
		{"short iv", CipherAndIV{CipherText: "AAAA", IV: base64.StdEncoding.EncodeToString([]byte("short"))}},
		{"bad cipher base64", CipherAndIV{CipherText: "%%%", IV: base64.StdEncoding.EncodeToString(make([]byte, FieldIVSize))}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecryptField(tc.in, key)
			require.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

func TestFieldCipher_InvalidKey(t *testing.T) {
	_, err := EncryptField([]byte("x"), "not-base64!")
	require.ErrorIs(t, err, ErrInvalidKey)

	short := base64.StdEncoding.EncodeToString([]byte("too short"))
	_, err = DecryptField(CipherAndIV{}, short)
	require.ErrorIs(t, err, ErrInvalidKey)
}

func rsaPEM(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	return priv, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestHandshake_EncryptOAEP(t *testing.T) {
	priv, p := rsaPEM(t)

	pub, err := ParsePublicKeyPEM(p)
	require.NoError(t, err)

	enc, err := EncryptForHandshake([]byte("user@example.com"), pub)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(enc)
	require.NoError(t, err)
	plain, err := rsa.DecryptOAEP(sha256.New(), nil, priv, raw, nil)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", string(plain))
}

func TestParsePublicKeyPEM_Rejects(t *testing.T) {
	ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&ec.PublicKey)
	require.NoError(t, err)
	ecPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	tests := []struct {
		name string
		pem  string
	}{
		{"empty", ""},
		{"garbage", "-----BEGIN PUBLIC KEY-----\nnope\n-----END PUBLIC KEY-----\n"},
		{"wrong block", "-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n"},
		{"ec key", ecPEM},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePublicKeyPEM(tc.pem)
			require.ErrorIs(t, err, ErrInvalidPublicKey)
		})
	}

	_, err = EncryptForHandshake([]byte("x"), nil)
	require.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestDeriveDeviceKey_Deterministic(t *testing.T) {
	k1 := DeriveDeviceKey([]byte("device-secret"), []byte("salt-1"))
	k2 := DeriveDeviceKey([]byte("device-secret"), []byte("salt-1"))
	k3 := DeriveDeviceKey([]byte("device-secret"), []byte("salt-2"))

	assert.Len(t, k1, 32)
	assert.Equal(t, hex.EncodeToString(k1), hex.EncodeToString(k2))
	assert.NotEqual(t, k1, k3)
}

func TestSealOpenLocal(t *testing.T) {
	type secret struct {
		ClientKey string `json:"client_key"`
		Token     string `json:"token"`
	}
	key := DeriveDeviceKey([]byte("device"), []byte("salt"))
	in := secret{ClientKey: "abc", Token: "tok"}

	ct, nonce, err := SealLocal(in, key)
	require.NoError(t, err)
	assert.Len(t, nonce, 12)

	var out secret
	require.NoError(t, OpenLocal(ct, nonce, key, &out))
	assert.Equal(t, in, out)

	other := DeriveDeviceKey([]byte("other"), []byte("salt"))
	require.ErrorIs(t, OpenLocal(ct, nonce, other, &out), ErrDecrypt)
}
