package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PostgresDSN  string
	MongoURI     string
	RedisAddr    string
	RabbitURL    string
	HTTPAddr     string
	OTLPEndpoint string

	ReservationTTL    time.Duration
	ReservationTTLMax time.Duration
	SweepInterval     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	ttl := durationEnv("RESERVATION_TTL", 5*time.Minute)
	ttlMax := durationEnv("RESERVATION_TTL_MAX", 15*time.Minute)
	sweep := durationEnv("SWEEP_INTERVAL", time.Minute)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	return &Config{
		PostgresDSN:       os.Getenv("PG_DSN"),
		MongoURI:          os.Getenv("MONGO_URI"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RabbitURL:         os.Getenv("RABBIT_URL"),
		HTTPAddr:          addr,
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ReservationTTL:    ttl,
		ReservationTTLMax: ttlMax,
		SweepInterval:     sweep,
	}, nil
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d == 0 {
		return fallback
	}
	return d
}
