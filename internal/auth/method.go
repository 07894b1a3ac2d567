package auth

import (
	"fmt"
	"os"
)

// Kind selects how Method authenticates during the connect handshake.
type Kind int

const (
	// KindNone performs no authentication beyond what the server URL's
	// userinfo already supplies.
	KindNone Kind = iota
	KindUserPass
	KindNKey
	KindToken
)

// Method describes one way to authenticate a connection. The zero value
// is KindNone.
type Method struct {
	Kind     Kind
	Username string
	Password string
	Token    string
	JWT      string
	Seed     string // raw nkey seed string, parsed lazily by Sign
}

// UserPass builds a username/password Method.
func UserPass(username, password string) Method {
	return Method{Kind: KindUserPass, Username: username, Password: password}
}

// TokenAuth builds a bare-token Method.
func TokenAuth(token string) Method {
	return Method{Kind: KindToken, Token: token}
}

// NKeyAuth builds a JWT+nkey Method. jwt may be empty for a bare nkey
// (non-JWT) challenge-response login.
func NKeyAuth(jwt, seed string) Method {
	return Method{Kind: KindNKey, JWT: jwt, Seed: seed}
}

// FromCredsFile loads a JWT and nkey seed from a .creds file on disk.
func FromCredsFile(path string) (Method, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Method{}, fmt.Errorf("auth: reading creds file %s: %w", path, err)
	}
	creds, err := ParseCredsFile(data)
	if err != nil {
		return Method{}, err
	}
	return NKeyAuth(creds.JWT, creds.Seed), nil
}

// ErrMissingNonce is returned by Sign when Method is KindNKey but the
// server's INFO never carried a challenge nonce.
var ErrMissingNonce = fmt.Errorf("auth: server did not send a nonce for nkey authentication")

// Sign resolves the signature fields to populate on a CONNECT payload.
// For KindNKey it signs nonce with the seed's ed25519 key; for every other
// kind it returns zero values (those kinds populate different CONNECT
// fields directly from Method).
func (m Method) Sign(nonce string) (publicKey, signature string, err error) {
	if m.Kind != KindNKey {
		return "", "", nil
	}
	if nonce == "" {
		return "", "", ErrMissingNonce
	}
	seed, err := ParseSeed(m.Seed)
	if err != nil {
		return "", "", err
	}
	return seed.Sign(nonce)
}

// EnvConfig is the auth method plus inbox prefix loaded from environment
// variables.
type EnvConfig struct {
	Method      Method
	InboxPrefix string
	URL         string
}

// FromEnv loads authentication and connection settings from the
// environment, in the precedence order documented in the package spec:
// NATS_JWT+NATS_NKEY, else NATS_CREDS_FILE, else NATS_USERNAME+
// NATS_PASSWORD, else no authentication. NATS_INBOX_PREFIX and NATS_URL
// are always read independently of which auth method was selected.
func FromEnv() (EnvConfig, error) {
	cfg := EnvConfig{
		InboxPrefix: os.Getenv("NATS_INBOX_PREFIX"),
		URL:         os.Getenv("NATS_URL"),
	}

	switch {
	case os.Getenv("NATS_JWT") != "" && os.Getenv("NATS_NKEY") != "":
		cfg.Method = NKeyAuth(os.Getenv("NATS_JWT"), os.Getenv("NATS_NKEY"))
	case os.Getenv("NATS_CREDS_FILE") != "":
		m, err := FromCredsFile(os.Getenv("NATS_CREDS_FILE"))
		if err != nil {
			return EnvConfig{}, err
		}
		cfg.Method = m
	case os.Getenv("NATS_USERNAME") != "" && os.Getenv("NATS_PASSWORD") != "":
		cfg.Method = UserPass(os.Getenv("NATS_USERNAME"), os.Getenv("NATS_PASSWORD"))
	}

	return cfg, nil
}
