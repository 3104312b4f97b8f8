package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"gigflow/retry"
)

type Config struct {
	Port           string
	MongoURI       string
	MongoDB        string
	RedisAddr      string
	RedisPassword  string
	JWTSecret      []byte
	Store          string // "mongo" or "memory"
	LogLevel       string
	PublicURL      string
	AllowedOrigins []string
	Retry          retry.Policy
}

// Load reads .env when present and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found; using system environment")
	}

	port := getenv("PORT", ":8080")
	if port[0] != ':' {
		port = ":" + port
	}

	pol := retry.Default()
	if d, err := time.ParseDuration(os.Getenv("REMOTE_TIMEOUT")); err == nil && d > 0 {
		pol.Timeout = d
	}
	if n, err := strconv.Atoi(os.Getenv("RETRY_ATTEMPTS")); err == nil && n > 0 {
		pol.Attempts = n
	}

	return Config{
		Port:           port,
		MongoURI:       getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:        getenv("MONGO_DB", "gigflow"),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		JWTSecret:      []byte(getenv("JWT_SECRET", "dev-secret-change-me")),
		Store:          strings.ToLower(getenv("STORE", "mongo")),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		PublicURL:      strings.TrimRight(getenv("PUBLIC_URL", "http://localhost:8080"), "/"),
		AllowedOrigins: splitList(getenv("ALLOWED_ORIGINS", "*")),
		Retry:          pol,
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
