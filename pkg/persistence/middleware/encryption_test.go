package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"testing"
	"time"

	"github.com/Veolinan/triage/pkg/adapters/memory"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/persistence/middleware"
	"github.com/Veolinan/triage/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewResponseStore()
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	secure := mw(underlying)
	ctx := context.Background()

	rec := tests.SampleResponse("p-1", domain.ClassDangerZone, time.Now().UTC())
	id, err := secure.InsertResponse(ctx, rec)
	require.NoError(t, err)

	// Underlying store only sees the envelope.
	stored, err := underlying.GetResponse(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, stored.PatientName)
	assert.Empty(t, stored.Flags)
	assert.Empty(t, stored.SuggestedCondition)
	assert.NotContains(t, stored.Answers, "q1")
	assert.Contains(t, stored.Answers, "__encrypted__")
	assert.Equal(t, domain.ClassDangerZone, stored.Classification, "filter fields stay in clear")
	assert.Equal(t, "p-1", stored.PatientID)

	loaded, err := secure.GetResponse(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, loaded.ID)
	assert.Equal(t, rec.Answers, loaded.Answers)
	assert.Equal(t, rec.PatientName, loaded.PatientName)
	assert.Equal(t, rec.Confidence, loaded.Confidence)
}

// The wrapped store must still satisfy the full contract.
func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	tests.RunResponseStoreContract(t, mw(memory.NewResponseStore()))
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewResponseStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	secureOld := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	id, err := secureOld.InsertResponse(ctx, tests.SampleResponse("p-rot", domain.ClassAlertZone, time.Now()))
	require.NoError(t, err)

	secureNew := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)

	loaded, err := secureNew.GetResponse(ctx, id)
	require.NoError(t, err, "fallback key must decrypt")

	reviewed, err := loaded.Review(domain.StatusFlagged, "dr-a", time.Now())
	require.NoError(t, err)
	require.NoError(t, secureNew.UpdateResponse(ctx, reviewed))

	_, err = secureOld.GetResponse(ctx, id)
	assert.Error(t, err, "old key alone cannot read data sealed with the new key")
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	})
}

func TestParseKey(t *testing.T) {
	raw := make([]byte, 32)
	key, err := middleware.ParseKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = middleware.ParseKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
	_, err = middleware.ParseKey("not base64!")
	assert.Error(t, err)
}
