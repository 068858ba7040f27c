package cli

import (
	"context"
	"testing"
	"time"

	"github.com/Veolinan/triage/internal/config"
	"github.com/Veolinan/triage/internal/logging"
	"github.com/Veolinan/triage/internal/testutils"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/persistence/middleware"
	"github.com/Veolinan/triage/pkg/ports/tests"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "a2tra2tra2tra2tra2tra2tra2tra2tra2tra2tra2s="

func configFor(driver string) *config.Config {
	cfg := config.Default()
	cfg.Store.Driver = driver
	return cfg
}

func openStores(t *testing.T, cfg *config.Config) *Stores {
	t.Helper()
	s, err := OpenStores(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenStores_Drivers(t *testing.T) {
	mr := miniredis.RunT(t)

	cases := map[string]func() *config.Config{
		config.DriverMemory: func() *config.Config { return configFor(config.DriverMemory) },
		config.DriverFile: func() *config.Config {
			cfg := configFor(config.DriverFile)
			cfg.Store.Path = t.TempDir()
			return cfg
		},
		config.DriverBadger: func() *config.Config {
			cfg := configFor(config.DriverBadger)
			cfg.Store.Path = t.TempDir()
			return cfg
		},
		config.DriverRedis: func() *config.Config {
			cfg := configFor(config.DriverRedis)
			cfg.Store.Redis.Addr = mr.Addr()
			return cfg
		},
	}

	for driver, cfg := range cases {
		t.Run(driver, func(t *testing.T) {
			s := openStores(t, cfg())
			require.NotNil(t, s.Nodes)
			require.NotNil(t, s.Sessions)
			require.NotNil(t, s.Responses)
			assert.Equal(t, driver == config.DriverRedis, s.Locker != nil)

			ctx := context.Background()
			id, err := s.Responses.InsertResponse(ctx, tests.SampleResponse("p1", domain.ClassDangerZone, time.Now().UTC()))
			require.NoError(t, err)
			got, err := s.Responses.GetResponse(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "p1", got.PatientID)
		})
	}
}

func TestOpenStores_UnknownDriver(t *testing.T) {
	_, err := OpenStores(context.Background(), configFor("sqlite"), logging.NewNop())
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestOpenStores_RedisUnreachable(t *testing.T) {
	cfg := configFor(config.DriverRedis)
	cfg.Store.Redis.Addr = "127.0.0.1:1"
	_, err := OpenStores(context.Background(), cfg, logging.NewNop())
	assert.ErrorContains(t, err, "failed to reach redis")
}

func TestOpenStores_ResponseMiddlewares(t *testing.T) {
	cfg := configFor(config.DriverMemory)
	cfg.Encryption.ActiveKey = testKey
	cfg.Encryption.PIIPatterns = []string{"^patientName$"}
	s := openStores(t, cfg)

	ctx := context.Background()
	id, err := s.Responses.InsertResponse(ctx, tests.SampleResponse("p1", domain.ClassAlertZone, time.Now().UTC()))
	require.NoError(t, err)

	got, err := s.Responses.GetResponse(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, got.PatientName)
	assert.Equal(t, "Yes", got.Answers["q1"], "encrypted fields round-trip")
}

func TestOpenStores_InvalidSecurityConfig(t *testing.T) {
	cases := []struct {
		name string
		enc  config.EncryptionConfig
		want string
	}{
		{"bad key", config.EncryptionConfig{ActiveKey: "short"}, "encryption.active_key"},
		{"bad fallback", config.EncryptionConfig{ActiveKey: testKey, FallbackKeys: []string{"x"}}, "fallback_keys[0]"},
		{"fallback alone", config.EncryptionConfig{FallbackKeys: []string{testKey}}, "requires an active_key"},
		{"bad pattern", config.EncryptionConfig{PIIPatterns: []string{"("}}, "invalid pii pattern"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			cfg := configFor(config.DriverMemory)
			cfg.Encryption = tt.enc
			_, err := OpenStores(context.Background(), cfg, logging.NewNop())
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestOpenStores_MarkdownBank(t *testing.T) {
	dir, _ := testutils.SetupTestRepo(t)
	testutils.WriteFiles(t, dir, map[string]string{
		"q1.md": "---\nid: q1\norder: 1\nroot: true\nstage_type: pregnant\nstage_range: \"1–3 months\"\ncategory: bleeding\nchoices:\n  - label: \"Yes\"\n    flag: danger\n  - label: \"No\"\n---\nAny bleeding?",
	})

	cfg := configFor(config.DriverMemory)
	cfg.Store.Bank = dir
	s := openStores(t, cfg)

	nodes, err := s.Nodes.FetchNodes(context.Background(), tests.SamplePartition)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Any bleeding?", nodes[0].Text)
}
