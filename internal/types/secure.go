package types

import "log/slog"

const maskedValue = "***REDACTED***"

var maskedValueJSON = []byte(`"` + maskedValue + `"`)

// SecretString holds a credential (provider API key, Stripe secret, database
// password) and masks itself everywhere a value can leak: fmt verbs, JSON
// encoding, and slog attributes all see the placeholder. Call Unmask at the
// point the plaintext is actually consumed, such as building an
// Authorization header or a connection string.
type SecretString string

func (s SecretString) String() string {
	return maskedValue
}

func (s SecretString) MarshalJSON() ([]byte, error) {
	return maskedValueJSON, nil
}

// LogValue masks the secret when it is passed to slog directly.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(maskedValue)
}

// Unmask returns the plaintext. Keep call sites to the final consumer of the
// credential; never pass the unmasked value through logging or serialization
// layers.
func (s SecretString) Unmask() string {
	return string(s)
}

var _ slog.LogValuer = SecretString("")
