package config

import (
	"log"
	"os"
)

// Config holds all process configuration, read once from the environment
// and injected into services. Business logic never reads env vars directly.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string

	SMTPHost  string
	SMTPPort  string
	SMTPUser  string
	SMTPPass  string
	EmailFrom string

	WahaBaseURL string
	WahaAPIKey  string

	FirebaseCredentialsPath string
}

// Load builds a Config from the environment. Optional values fall back to
// defaults; required values are validated by the callers that need them
// (the worker does not need Firebase, the server does not need a ticker).
func Load() Config {
	return Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		RazorpayKeyID:         os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),

		SMTPHost:  os.Getenv("SMTP_HOST"),
		SMTPPort:  os.Getenv("SMTP_PORT"),
		SMTPUser:  os.Getenv("SMTP_USER"),
		SMTPPass:  os.Getenv("SMTP_PASS"),
		EmailFrom: os.Getenv("EMAIL_FROM"),

		WahaBaseURL: getEnv("WAHA_BASE_URL", "http://waha:3000"),
		WahaAPIKey:  os.Getenv("WAHA_API_KEY"),

		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "./firebase-service-account.json"),
	}
}

// MustGateway fatals unless the Razorpay credentials are present.
func (c Config) MustGateway() {
	if c.RazorpayKeyID == "" || c.RazorpayKeySecret == "" {
		log.Fatal("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET must be set")
	}
	if c.RazorpayWebhookSecret == "" {
		log.Fatal("RAZORPAY_WEBHOOK_SECRET must be set")
	}
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}
