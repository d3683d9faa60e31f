// Package secrets seals private property values at rest.
package secrets

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"go.uber.org/zap"

	"nms-backend/internal/config"
)

// Policy encodes private values before they are stored and decodes them for
// export. Every private property of every entity goes through the same policy.
type Policy interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

// AgePolicy encrypts to its own X25519 recipient and stores the ciphertext
// base64 encoded.
type AgePolicy struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewAgePolicy parses an "AGE-SECRET-KEY-1..." identity.
func NewAgePolicy(identity string) (*AgePolicy, error) {
	id, err := age.ParseX25519Identity(strings.TrimSpace(identity))
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}
	return &AgePolicy{identity: id, recipient: id.Recipient()}, nil
}

// GenerateAgePolicy creates a policy around a fresh identity.
func GenerateAgePolicy() (*AgePolicy, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}
	return &AgePolicy{identity: id, recipient: id.Recipient()}, nil
}

// Load builds the policy from configuration. Without a configured identity
// an ephemeral one is generated: sealed values then cannot be opened after
// a restart, so a warning is logged.
func Load(cfg config.SecretsConfig, log *zap.SugaredLogger) (*AgePolicy, error) {
	identity := cfg.Identity
	if identity == "" && cfg.IdentityFile != "" {
		data, err := os.ReadFile(cfg.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("read identity file: %w", err)
		}
		identity = firstIdentityLine(string(data))
	}
	if identity == "" {
		log.Warnw("no secrets identity configured, generating an ephemeral one")
		return GenerateAgePolicy()
	}
	return NewAgePolicy(identity)
}

// firstIdentityLine skips the comment lines age-keygen writes.
func firstIdentityLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return line
		}
	}
	return ""
}

// Identity returns the secret identity string.
func (p *AgePolicy) Identity() string {
	return p.identity.String()
}

// Recipient returns the public key values are sealed to.
func (p *AgePolicy) Recipient() string {
	return p.recipient.String()
}

func (p *AgePolicy) Seal(plain string) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, p.recipient)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := io.WriteString(w, plain); err != nil {
		return "", fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (p *AgePolicy) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decoding base64 ciphertext: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), p.identity)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	return string(plain), nil
}

var _ Policy = (*AgePolicy)(nil)
