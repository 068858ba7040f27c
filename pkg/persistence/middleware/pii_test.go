package middleware_test

import (
	"context"
	"testing"
	"time"

	"github.com/Veolinan/triage/pkg/adapters/memory"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/persistence/middleware"
	"github.com/Veolinan/triage/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlying := memory.NewResponseStore()
	secure := middleware.NewPIIMiddleware([]string{"(?i)patientname", "^id-"})(underlying)
	ctx := context.Background()

	rec := tests.SampleResponse("p-1", domain.ClassLowRisk, time.Now())
	rec.Answers["id-national"] = "123-45-678"

	id, err := secure.InsertResponse(ctx, rec)
	require.NoError(t, err)

	assert.Equal(t, "123-45-678", rec.Answers["id-national"], "caller's record must not change")
	assert.Equal(t, "Jane p-1", rec.PatientName)

	stored, err := underlying.GetResponse(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, stored.PatientName)
	assert.Equal(t, middleware.Mask, stored.Answers["id-national"])
	assert.Equal(t, "Yes", stored.Answers["q1"])
	assert.Equal(t, "p-1", stored.PatientID)
}

func TestChain_OrderMasksBeforeEncrypting(t *testing.T) {
	underlying := memory.NewResponseStore()
	store := middleware.Chain(underlying,
		middleware.NewPIIMiddleware([]string{"patientName"}),
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)}),
	)
	ctx := context.Background()

	id, err := store.InsertResponse(ctx, tests.SampleResponse("p-2", domain.ClassLowRisk, time.Now()))
	require.NoError(t, err)

	got, err := store.GetResponse(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, got.PatientName)
	assert.Equal(t, "Yes", got.Answers["q1"])
}
