package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every externally supplied setting. It is built once at
// startup and injected into the services that need it; nothing reads the
// process environment at call time.
type Config struct {
	HTTPAddr    string
	DatabaseURL string
	RedisAddr   string
	JWTSecret   string

	// CanonicalCurrency is the currency negotiations are priced in.
	CanonicalCurrency string
	// FXRates maps a payment currency to the fixed rate converting one of its
	// minor units into canonical minor units. The canonical currency maps to 1.
	FXRates map[string]float64
	// PayoutSplit is the fraction of the credited amount earned by the
	// transcriber.
	PayoutSplit float64

	PaystackSecretKey string
	PaymentCallback   string
	ProviderTimeout   time.Duration

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
}

// Load reads configuration from the environment, honouring a local .env file
// when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:          envOr("HTTP_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisAddr:         envOr("REDIS_ADDR", "127.0.0.1:6379"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		CanonicalCurrency: envOr("CANONICAL_CURRENCY", "NGN"),
		PayoutSplit:       0.85,
		PaystackSecretKey: os.Getenv("PAYSTACK_SECRET_KEY"),
		PaymentCallback:   os.Getenv("PAYMENT_CALLBACK_URL"),
		ProviderTimeout:   15 * time.Second,
		SMTPHost:          os.Getenv("SMTP_HOST"),
		SMTPUser:          os.Getenv("SMTP_USER"),
		SMTPPass:          os.Getenv("SMTP_PASS"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: JWT_SECRET is required")
	}

	if v := os.Getenv("PAYOUT_SPLIT"); v != "" {
		split, err := strconv.ParseFloat(v, 64)
		if err != nil || split <= 0 || split >= 1 {
			return Config{}, fmt.Errorf("config: invalid PAYOUT_SPLIT %q", v)
		}
		cfg.PayoutSplit = split
	}

	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid SMTP_PORT %q", v)
		}
		cfg.SMTPPort = port
	}

	if v := os.Getenv("PROVIDER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid PROVIDER_TIMEOUT %q", v)
		}
		cfg.ProviderTimeout = d
	}

	rates, err := parseRates(os.Getenv("FX_RATES"), cfg.CanonicalCurrency)
	if err != nil {
		return Config{}, err
	}
	cfg.FXRates = rates

	return cfg, nil
}

// parseRates accepts a snapshot like "USD=1560.5,GHS=108.2". The canonical
// currency is always present with rate 1.
func parseRates(raw, canonical string) (map[string]float64, error) {
	rates := map[string]float64{canonical: 1}
	if raw == "" {
		return rates, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("config: malformed FX_RATES entry %q", pair)
		}
		rate, err := strconv.ParseFloat(parts[1], 64)
		if err != nil || rate <= 0 {
			return nil, fmt.Errorf("config: invalid FX rate for %s: %q", parts[0], parts[1])
		}
		rates[strings.ToUpper(parts[0])] = rate
	}
	return rates, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
