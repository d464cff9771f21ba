package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("AUTOEVAL_JWT_SECRET", "jwt-secret")
	t.Setenv("AUTOEVAL_ENCRYPTION_KEY", "encryption-secret")
	t.Setenv("PORT", "")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, "ollama", cfg.InferenceProvider)
	require.Equal(t, "http://localhost:11434", cfg.InferenceBaseURL)
	require.Equal(t, 120*time.Second, cfg.InferenceTimeout)
	require.Equal(t, 240*time.Second, cfg.GradingMarkerTTL)
	require.Equal(t, 2, cfg.BatchConcurrency)
	require.Equal(t, int64(10*1024*1024), cfg.UploadMaxBytes)
	require.Equal(t, "uploads", cfg.UploadDir)
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("AUTOEVAL_JWT_SECRET", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("AUTOEVAL_ENCRYPTION_KEY", "key")

	_, err := Load()
	require.ErrorContains(t, err, "jwt secret")

	t.Setenv("AUTOEVAL_JWT_SECRET", "secret")
	t.Setenv("AUTOEVAL_ENCRYPTION_KEY", "")
	t.Setenv("ENCRYPTION_KEY", "")

	_, err = Load()
	require.ErrorContains(t, err, "encryption key")
}

func TestLoadLegacyNames(t *testing.T) {
	t.Setenv("JWT_SECRET", "legacy-jwt")
	t.Setenv("ENCRYPTION_KEY", "legacy-key")
	t.Setenv("MONGO_URI", "postgres://legacy")
	t.Setenv("CLIENT_URL", "https://autoeval.example.com")
	t.Setenv("INFERENCE_BASE_URL", "http://gpu-box:11434")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "legacy-jwt", cfg.JWTSecret)
	require.Equal(t, "legacy-key", cfg.EncryptionKey)
	require.Equal(t, "postgres://legacy", cfg.DatabaseURL)
	require.Equal(t, "https://autoeval.example.com", cfg.ClientURL)
	require.Equal(t, "http://gpu-box:11434", cfg.InferenceBaseURL)
}

func TestLoadPrefixedWinsOverLegacy(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "legacy-jwt")
	t.Setenv("AUTOEVAL_DATABASE_URL", "postgres://primary")
	t.Setenv("DATABASE_URL", "postgres://secondary")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "jwt-secret", cfg.JWTSecret)
	require.Equal(t, "postgres://primary", cfg.DatabaseURL)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("AUTOEVAL_INFERENCE_TIMEOUT", "45s")
	t.Setenv("AUTOEVAL_BATCH_CONCURRENCY", "4")
	t.Setenv("AUTOEVAL_UPLOAD_MAX_MB", "2")
	t.Setenv("AUTOEVAL_GRADING_MARKER_TTL", "5m")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 45*time.Second, cfg.InferenceTimeout)
	require.Equal(t, 4, cfg.BatchConcurrency)
	require.Equal(t, int64(2*1024*1024), cfg.UploadMaxBytes)
	require.Equal(t, 5*time.Minute, cfg.GradingMarkerTTL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"bad duration":      {"AUTOEVAL_INFERENCE_TIMEOUT", "soon"},
		"negative duration": {"AUTOEVAL_INFERENCE_TIMEOUT", "-5s"},
		"zero concurrency":  {"AUTOEVAL_BATCH_CONCURRENCY", "0"},
		"unknown provider":  {"AUTOEVAL_INFERENCE_PROVIDER", "mystery"},
		"zero upload size":  {"AUTOEVAL_UPLOAD_MAX_MB", "0"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(env[0], env[1])

			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadAdminSeed(t *testing.T) {
	setRequired(t)
	t.Setenv("AUTOEVAL_ADMIN_EMAIL", " admin@example.com ")
	t.Setenv("AUTOEVAL_ADMIN_PASSWORD", "short")

	_, err := Load()
	require.ErrorContains(t, err, "admin password")

	t.Setenv("AUTOEVAL_ADMIN_PASSWORD", "long enough secret")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "admin@example.com", cfg.AdminEmail)
	require.Equal(t, "Administrator", cfg.AdminName)
}
