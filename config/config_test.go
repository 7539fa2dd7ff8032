package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmer-registration/models"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)

	assert.Equal(t, "https://api.agrivalah.in", cfg.APIBaseURL)
	assert.Equal(t, 300, cfg.DefaultAmount)
	assert.Equal(t, 250, cfg.DiscountedAmount)
	assert.Equal(t, 4, cfg.OTPLength)
	assert.Equal(t, 60*time.Second, cfg.ResendCooldown)
	assert.Equal(t, 300*time.Second, cfg.OTPExpiry)
	assert.Equal(t, 500*time.Millisecond, cfg.CouponDebounce)
	assert.Equal(t, models.VerifyStrict, cfg.VerifyPolicy)
	assert.Equal(t, FinalizerDirect, cfg.Finalizer)
	assert.Equal(t, "localhost:7233", cfg.TemporalAddress)
	assert.Equal(t, "registration-finalization-queue", cfg.TaskQueue)
	assert.Nil(t, cfg.EncryptionKey)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"REGFLOW_DEFAULT_AMOUNT":  "500",
		"REGFLOW_RESEND_COOLDOWN": "30",
		"REGFLOW_COUPON_DEBOUNCE": "350ms",
		"REGFLOW_VERIFY_POLICY":   "best-effort",
		"REGFLOW_FINALIZER":       "temporal",
		"ENCRYPTION_KEY":          strings.Repeat("ab", 32),
	}))
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.DefaultAmount)
	assert.Equal(t, 30*time.Second, cfg.ResendCooldown)
	assert.Equal(t, 350*time.Millisecond, cfg.CouponDebounce)
	assert.Equal(t, models.VerifyBestEffort, cfg.VerifyPolicy)
	assert.Equal(t, FinalizerTemporal, cfg.Finalizer)
	assert.Len(t, cfg.EncryptionKey, 32)
}

func TestFromEnvInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "Bad Amount", key: "REGFLOW_DEFAULT_AMOUNT", val: "three hundred"},
		{name: "Zero Amount", key: "REGFLOW_DEFAULT_AMOUNT", val: "0"},
		{name: "Bad Duration", key: "REGFLOW_OTP_EXPIRY", val: "soon"},
		{name: "Bad Policy", key: "REGFLOW_VERIFY_POLICY", val: "lenient"},
		{name: "Bad Finalizer", key: "REGFLOW_FINALIZER", val: "kafka"},
		{name: "Short Key", key: "ENCRYPTION_KEY", val: "abcd"},
		{name: "Non Hex Key", key: "ENCRYPTION_KEY", val: "zz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(env(map[string]string{tt.key: tt.val}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("REGFLOW_OTP_LENGTH=6\n"), 0o600))
	t.Setenv("REGFLOW_OTP_LENGTH", "")
	os.Unsetenv("REGFLOW_OTP_LENGTH")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.OTPLength)
}

func TestLoadIgnoresMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}
