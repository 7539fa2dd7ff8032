// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"farmer-registration/models"
)

const (
	FinalizerDirect   = "direct"
	FinalizerTemporal = "temporal"
)

// Config holds every tunable of the registration flow
type Config struct {
	APIBaseURL        string
	DefaultAmount     int
	DiscountedAmount  int
	OTPLength         int
	ResendCooldown    time.Duration
	OTPExpiry         time.Duration
	CouponDebounce    time.Duration
	CheckoutScriptURL string
	CheckoutAddr      string
	VerifyPolicy      models.VerifyPolicy
	Finalizer         string
	TemporalAddress   string
	TaskQueue         string
	EncryptionKey     []byte
}

// Load reads .env files (missing files are ignored) and then the environment
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function
func FromEnv(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}
	cfg := Config{
		APIBaseURL:        p.str("REGFLOW_API_BASE_URL", "https://api.agrivalah.in"),
		DefaultAmount:     p.integer("REGFLOW_DEFAULT_AMOUNT", 300),
		DiscountedAmount:  p.integer("REGFLOW_DISCOUNTED_AMOUNT", 250),
		OTPLength:         p.integer("REGFLOW_OTP_LENGTH", 4),
		ResendCooldown:    p.duration("REGFLOW_RESEND_COOLDOWN", 60*time.Second),
		OTPExpiry:         p.duration("REGFLOW_OTP_EXPIRY", 300*time.Second),
		CouponDebounce:    p.duration("REGFLOW_COUPON_DEBOUNCE", 500*time.Millisecond),
		CheckoutScriptURL: p.str("REGFLOW_CHECKOUT_SCRIPT_URL", "https://checkout.razorpay.com/v1/checkout.js"),
		CheckoutAddr:      p.str("REGFLOW_CHECKOUT_ADDR", "127.0.0.1:8090"),
		Finalizer:         p.str("REGFLOW_FINALIZER", FinalizerDirect),
		TemporalAddress:   p.str("TEMPORAL_ADDRESS", "localhost:7233"),
		TaskQueue:         p.str("REGFLOW_TASK_QUEUE", "registration-finalization-queue"),
	}

	policy, err := models.ParseVerifyPolicy(getenv("REGFLOW_VERIFY_POLICY"))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("REGFLOW_VERIFY_POLICY: %w", err))
	}
	cfg.VerifyPolicy = policy

	if key := getenv("ENCRYPTION_KEY"); key != "" {
		b, err := hex.DecodeString(key)
		switch {
		case err != nil:
			p.errs = append(p.errs, fmt.Errorf("ENCRYPTION_KEY: %w", err))
		case len(b) != 32:
			p.errs = append(p.errs, fmt.Errorf("ENCRYPTION_KEY: want 32 bytes, got %d", len(b)))
		default:
			cfg.EncryptionKey = b
		}
	}

	if cfg.Finalizer != FinalizerDirect && cfg.Finalizer != FinalizerTemporal {
		p.errs = append(p.errs, fmt.Errorf("REGFLOW_FINALIZER: unknown finalizer %q", cfg.Finalizer))
	}
	if cfg.DefaultAmount <= 0 {
		p.errs = append(p.errs, fmt.Errorf("REGFLOW_DEFAULT_AMOUNT: must be positive"))
	}
	if cfg.OTPLength <= 0 {
		p.errs = append(p.errs, fmt.Errorf("REGFLOW_OTP_LENGTH: must be positive"))
	}

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := p.getenv(key); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

// duration accepts Go durations ("90s") or a bare number of seconds
func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
