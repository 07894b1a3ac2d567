package auth

import "testing"

func TestFromEnvPrecedence(t *testing.T) {
	t.Run("nkey wins over everything", func(t *testing.T) {
		t.Setenv("NATS_JWT", "jwt-val")
		t.Setenv("NATS_NKEY", "seed-val")
		t.Setenv("NATS_CREDS_FILE", "")
		t.Setenv("NATS_USERNAME", "alice")
		t.Setenv("NATS_PASSWORD", "secret")

		cfg, err := FromEnv()
		if err != nil {
			t.Fatalf("FromEnv: %v", err)
		}
		if cfg.Method.Kind != KindNKey || cfg.Method.JWT != "jwt-val" || cfg.Method.Seed != "seed-val" {
			t.Errorf("Method = %+v, want nkey jwt-val/seed-val", cfg.Method)
		}
	})

	t.Run("user/pass when nothing else set", func(t *testing.T) {
		t.Setenv("NATS_JWT", "")
		t.Setenv("NATS_NKEY", "")
		t.Setenv("NATS_CREDS_FILE", "")
		t.Setenv("NATS_USERNAME", "alice")
		t.Setenv("NATS_PASSWORD", "secret")

		cfg, err := FromEnv()
		if err != nil {
			t.Fatalf("FromEnv: %v", err)
		}
		if cfg.Method.Kind != KindUserPass || cfg.Method.Username != "alice" || cfg.Method.Password != "secret" {
			t.Errorf("Method = %+v, want user/pass alice/secret", cfg.Method)
		}
	})

	t.Run("none when nothing set", func(t *testing.T) {
		t.Setenv("NATS_JWT", "")
		t.Setenv("NATS_NKEY", "")
		t.Setenv("NATS_CREDS_FILE", "")
		t.Setenv("NATS_USERNAME", "")
		t.Setenv("NATS_PASSWORD", "")

		cfg, err := FromEnv()
		if err != nil {
			t.Fatalf("FromEnv: %v", err)
		}
		if cfg.Method.Kind != KindNone {
			t.Errorf("Kind = %v, want KindNone", cfg.Method.Kind)
		}
	})
}

func TestMethodSignRequiresNonce(t *testing.T) {
	m := NKeyAuth("", "seed-val")
	if _, _, err := m.Sign(""); err != ErrMissingNonce {
		t.Errorf("Sign with empty nonce: err = %v, want ErrMissingNonce", err)
	}
}

func TestMethodSignNoopForNonNKey(t *testing.T) {
	m := UserPass("alice", "secret")
	pub, sig, err := m.Sign("nonce")
	if err != nil || pub != "" || sig != "" {
		t.Errorf("Sign on user/pass method = (%q, %q, %v), want empty/empty/nil", pub, sig, err)
	}
}
