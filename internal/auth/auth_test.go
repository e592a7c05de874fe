package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadOrGenerateKeyPair(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")

	first, err := LoadOrGenerateKeyPair(dir)
	if err != nil {
		t.Fatalf("LoadOrGenerateKeyPair: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, privateKeyFile))
	if err != nil {
		t.Fatalf("private key not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("private key mode = %o, want 600", perm)
	}

	second, err := LoadOrGenerateKeyPair(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !first.PrivateKey.Equal(second.PrivateKey) {
		t.Error("existing key pair was not reused")
	}
}

func TestLoadKeyPair_Corrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, privateKeyFile), []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadOrGenerateKeyPair(dir); err == nil {
		t.Error("a corrupt key file must not be silently replaced")
	}
}

func TestJWTService(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	svc := NewJWTService(kp, "guest-portal")

	token, expiresAt, err := svc.GenerateToken("admin", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if time.Until(expiresAt) <= 59*time.Minute {
		t.Errorf("expiresAt = %v", expiresAt)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "admin" || claims.Role != RoleAdmin {
		t.Errorf("claims = %+v", claims)
	}

	other, _ := GenerateKeyPair()
	if _, err := NewJWTService(other, "guest-portal").ValidateToken(token); err == nil {
		t.Error("token signed by another key must be rejected")
	}
	if _, err := NewJWTService(kp, "someone-else").ValidateToken(token); err == nil {
		t.Error("token from another issuer must be rejected")
	}

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := svc.ValidateToken(token); err == nil || !strings.Contains(err.Error(), "expired") {
		t.Errorf("expired token error = %v", err)
	}
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		configured string
		attempt    string
		want       bool
	}{
		{"hunter2", "hunter2", true},
		{"hunter2", "hunter3", false},
		{"", "", false},
		{hash, "hunter2", true},
		{hash, "hunter3", false},
	}
	for _, tt := range tests {
		if got := CheckPassword(tt.configured, tt.attempt); got != tt.want {
			t.Errorf("CheckPassword(%q, %q) = %v, want %v", tt.configured, tt.attempt, got, tt.want)
		}
	}
}
