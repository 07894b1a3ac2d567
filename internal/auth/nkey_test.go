package auth

import "testing"

func buildSeed(t *testing.T, prefix, kind byte, body [32]byte) string {
	t.Helper()
	buf := make([]byte, seedLen)
	buf[0] = prefix
	buf[1] = kind
	copy(buf[2:34], body[:])
	crc := crc16XModem(buf[:34])
	buf[34] = byte(crc)
	buf[35] = byte(crc >> 8)
	return b32.EncodeToString(buf)
}

func TestParseSeedRoundTrip(t *testing.T) {
	var body [32]byte
	for i := range body {
		body[i] = byte(i)
	}
	s := buildSeed(t, 0x90, 0x14, body)
	if len(s) != rawSeedLen {
		t.Fatalf("constructed seed length = %d, want %d", len(s), rawSeedLen)
	}

	seed, err := ParseSeed(s)
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}
	if seed.Prefix != 0x90 {
		t.Errorf("Prefix = %#x, want 0x90", seed.Prefix)
	}
	if seed.Kind != 0x14 {
		t.Errorf("Kind = %#x, want 0x14", seed.Kind)
	}
}

func TestParseSeedRejectsBadLength(t *testing.T) {
	if _, err := ParseSeed("tooshort"); err == nil {
		t.Fatal("expected error for short seed")
	}
}

func TestParseSeedRejectsBadBase32(t *testing.T) {
	bad := "0000000000000000000000000000000000000000000000000000000000"
	if len(bad) != rawSeedLen {
		t.Fatalf("test fixture length = %d, want %d", len(bad), rawSeedLen)
	}
	if _, err := ParseSeed(bad); err == nil {
		t.Fatal("expected error for invalid base32 characters")
	}
}

func TestParseSeedRejectsBadPrefix(t *testing.T) {
	var body [32]byte
	s := buildSeed(t, 0x00, 0x14, body)
	if _, err := ParseSeed(s); err == nil {
		t.Fatal("expected error for wrong prefix byte")
	}
}

func TestParseSeedRejectsChecksumMismatch(t *testing.T) {
	var body [32]byte
	s := buildSeed(t, 0x90, 0x14, body)
	// Flip the last character, which perturbs the decoded CRC bytes without
	// changing the string length.
	corrupted := []byte(s)
	if corrupted[len(corrupted)-1] == 'A' {
		corrupted[len(corrupted)-1] = 'B'
	} else {
		corrupted[len(corrupted)-1] = 'A'
	}
	if _, err := ParseSeed(string(corrupted)); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestCRC16XModemKnownVector(t *testing.T) {
	// "123456789" is the standard CRC catalogue check string; XMODEM's
	// check value over it is 0x31C3.
	if got := crc16XModem([]byte("123456789")); got != 0x31C3 {
		t.Errorf("crc16XModem(\"123456789\") = %#04x, want 0x31c3", got)
	}
}
