// Package common contains shared constants and sentinel errors used across
// liusync components.
package common

// Header names carrying the session identity out of band.
const (
	TokenHeaderName  = "x-liu-token"
	SerialHeaderName = "x-liu-serial"
)

// Body field names attached to every outbound request.
const (
	FieldLanguage = "x_liu_language"
	FieldTheme    = "x_liu_theme"
	FieldVersion  = "x_liu_version"
	FieldStamp    = "x_liu_stamp"
	FieldTimezone = "x_liu_timezone"
	FieldClient   = "x_liu_client"
	FieldDevice   = "x_liu_device"
	FieldToken    = "x_liu_token"
	FieldSerial   = "x_liu_serial"
)

// Prefixes marking fields that travel encrypted with the session key.
// A body key "plz_enc_atoms" goes over the wire as "liu_enc_atoms".
const (
	PlainEncryptPrefix  = "plz_enc_"
	CipherPayloadPrefix = "liu_enc_"
)

// CodeOK is the envelope code of a successful response.
const CodeOK = "0000"
