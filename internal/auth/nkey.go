// Package auth implements NATS nkey seed decoding, .creds file parsing,
// challenge-response signing, and environment-variable configuration
// loading.
package auth

import (
	"encoding/base32"
	"fmt"

	"github.com/nats-io/nkeys"
)

// seedLen is the decoded byte length of an nkey seed (prefix byte, kind
// byte, 32-byte ed25519 seed, 2-byte CRC).
const seedLen = 36

// rawSeedLen is the ASCII length of a base32-without-padding encoded seed.
const rawSeedLen = 58

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Seed is a decoded nkey seed, verified against its embedded CRC-16/XMODEM
// checksum.
type Seed struct {
	Prefix byte
	Kind   byte
	raw    string // original encoded seed, reused to build the nkeys.KeyPair
}

// ErrInvalidSeed is returned when a seed string fails length, prefix, or
// checksum validation.
type ErrInvalidSeed struct {
	Reason string
}

func (e *ErrInvalidSeed) Error() string { return "auth: invalid nkey seed: " + e.Reason }

// ParseSeed decodes and validates an ASCII nkey seed string of the form
// produced by nkeys, e.g. "SUAI3K5L...". It independently recomputes the
// CRC-16/XMODEM checksum over the first 34 decoded bytes and compares it
// to the trailing 2 bytes, rather than trusting the nkeys library's own
// (equivalent) internal check.
func ParseSeed(s string) (*Seed, error) {
	if len(s) != rawSeedLen {
		return nil, &ErrInvalidSeed{Reason: fmt.Sprintf("expected %d characters, got %d", rawSeedLen, len(s))}
	}

	decoded, err := b32.DecodeString(s)
	if err != nil {
		return nil, &ErrInvalidSeed{Reason: "base32: " + err.Error()}
	}
	if len(decoded) != seedLen {
		return nil, &ErrInvalidSeed{Reason: fmt.Sprintf("decoded length %d, want %d", len(decoded), seedLen)}
	}

	if decoded[0]&0xF8 != 0x90 {
		return nil, &ErrInvalidSeed{Reason: "missing 'S' (seed) prefix byte"}
	}

	wantCRC := crc16XModem(decoded[:34])
	gotCRC := uint16(decoded[34]) | uint16(decoded[35])<<8
	if wantCRC != gotCRC {
		return nil, &ErrInvalidSeed{Reason: "checksum mismatch"}
	}

	return &Seed{Prefix: decoded[0], Kind: decoded[1], raw: s}, nil
}

// crc16XModem computes the CRC-16/XMODEM checksum nkeys uses to guard
// against typos in copy-pasted seeds. The standard library has no crc16
// package, so this is the textbook bit-at-a-time implementation of the
// (poly=0x1021, init=0x0000, no reflect, no xorout) variant.
func crc16XModem(b []byte) uint16 {
	var crc uint16
	for _, c := range b {
		crc ^= uint16(c) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// KeyPair builds an ed25519 signing key pair from the seed via nkeys.
func (s *Seed) KeyPair() (nkeys.KeyPair, error) {
	kp, err := nkeys.FromSeed([]byte(s.raw))
	if err != nil {
		return nil, fmt.Errorf("auth: nkey from seed: %w", err)
	}
	return kp, nil
}

// Sign signs nonce with the seed's ed25519 key and returns the public key
// string and a base64url-without-padding signature, as required by the
// NATS nkey challenge-response handshake.
func (s *Seed) Sign(nonce string) (publicKey, signature string, err error) {
	kp, err := s.KeyPair()
	if err != nil {
		return "", "", err
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return "", "", fmt.Errorf("auth: nkey public key: %w", err)
	}
	sig, err := kp.Sign([]byte(nonce))
	if err != nil {
		return "", "", fmt.Errorf("auth: nkey sign: %w", err)
	}
	return pub, base64URLNoPad(sig), nil
}
