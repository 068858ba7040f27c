package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/ports"
)

// envelopeKey holds the ciphertext inside the stored record's Answers.
const envelopeKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// ParseKey decodes a base64 AES-256 key.
func ParseKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid key encoding: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

type encryptionMiddleware struct {
	next   ports.ResponseStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals the clinical
// content of each response with AES-GCM. The fields used for filtering and
// review (ID, patient ID, partition, classification, status, timestamps)
// stay in clear so the underlying store can still index them.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.ResponseStore) ports.ResponseStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) seal(record domain.ResponseRecord) (domain.ResponseRecord, error) {
	plainText, err := json.Marshal(record)
	if err != nil {
		return domain.ResponseRecord{}, fmt.Errorf("failed to marshal response: %w", err)
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return domain.ResponseRecord{}, fmt.Errorf("failed to encrypt response: %w", err)
	}

	return domain.ResponseRecord{
		ID:             record.ID,
		SessionID:      record.SessionID,
		PatientID:      record.PatientID,
		Partition:      record.Partition,
		Answers:        map[string]string{envelopeKey: base64.StdEncoding.EncodeToString(ciphertext)},
		Classification: record.Classification,
		SubmittedAt:    record.SubmittedAt,
		Status:         record.Status,
		ReviewedBy:     record.ReviewedBy,
		ReviewedAt:     record.ReviewedAt,
	}, nil
}

func (m *encryptionMiddleware) open(envelope domain.ResponseRecord) (domain.ResponseRecord, error) {
	encryptedStr, ok := envelope.Answers[envelopeKey]
	if !ok {
		return domain.ResponseRecord{}, errors.New("response is missing encrypted data envelope")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedStr)
	if err != nil {
		return domain.ResponseRecord{}, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return domain.ResponseRecord{}, fmt.Errorf("failed to decrypt response: %w", err)
	}

	var rec domain.ResponseRecord
	if err := json.Unmarshal(plainText, &rec); err != nil {
		return domain.ResponseRecord{}, fmt.Errorf("failed to unmarshal decrypted response: %w", err)
	}
	// The clear fields are authoritative: the store may assign the ID.
	rec.ID = envelope.ID
	rec.Status = envelope.Status
	rec.ReviewedBy = envelope.ReviewedBy
	rec.ReviewedAt = envelope.ReviewedAt
	return rec, nil
}

func (m *encryptionMiddleware) InsertResponse(ctx context.Context, record domain.ResponseRecord) (string, error) {
	envelope, err := m.seal(record)
	if err != nil {
		return "", err
	}
	return m.next.InsertResponse(ctx, envelope)
}

func (m *encryptionMiddleware) GetResponse(ctx context.Context, id string) (domain.ResponseRecord, error) {
	envelope, err := m.next.GetResponse(ctx, id)
	if err != nil {
		return domain.ResponseRecord{}, err
	}
	return m.open(envelope)
}

func (m *encryptionMiddleware) ListResponses(ctx context.Context, filter domain.ResponseFilter) ([]domain.ResponseRecord, error) {
	envelopes, err := m.next.ListResponses(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ResponseRecord, 0, len(envelopes))
	for _, env := range envelopes {
		rec, err := m.open(env)
		if err != nil {
			return nil, fmt.Errorf("response %s: %w", env.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *encryptionMiddleware) UpdateResponse(ctx context.Context, record domain.ResponseRecord) error {
	envelope, err := m.seal(record)
	if err != nil {
		return err
	}
	return m.next.UpdateResponse(ctx, envelope)
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
