package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"nms-backend/internal/config"
)

func TestSealOpen_RoundTrip(t *testing.T) {
	p, err := GenerateAgePolicy()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	sealed, err := p.Seal("s3cret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if sealed == "s3cret" {
		t.Fatal("sealed value must not be the plaintext")
	}
	plain, err := p.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if plain != "s3cret" {
		t.Fatalf("expected s3cret, got %q", plain)
	}
}

func TestOpen_WrongIdentity(t *testing.T) {
	a, _ := GenerateAgePolicy()
	b, _ := GenerateAgePolicy()
	sealed, err := a.Seal("x")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := b.Open(sealed); err == nil {
		t.Fatal("expected decrypt failure with another identity")
	}
	if _, err := a.Open("not base64!"); err == nil {
		t.Fatal("expected decode failure")
	}
}

func TestLoad_IdentityFile(t *testing.T) {
	src, _ := GenerateAgePolicy()
	path := filepath.Join(t.TempDir(), "key.txt")
	body := "# created: 2026-01-01\n# public key: " + src.Recipient() + "\n" + src.Identity() + "\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := Load(config.SecretsConfig{IdentityFile: path}, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Recipient() != src.Recipient() {
		t.Fatal("expected the identity from the file")
	}
}

func TestLoad_Ephemeral(t *testing.T) {
	p, err := Load(config.SecretsConfig{}, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Identity() == "" {
		t.Fatal("expected generated identity")
	}
	if _, err := NewAgePolicy("garbage"); err == nil {
		t.Fatal("expected parse error")
	}
}
