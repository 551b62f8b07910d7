package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Config struct {
	Port   string
	Env    string // "development" | "production"
	LogDir string

	MongoURI    string
	DBName      string
	MongoClient *mongo.Client
	OpTimeout   time.Duration

	// Shared client key for /voting (and /location when GateLocation).
	APIKey       string
	GateLocation bool
	// Exchanged for an admin JWT at /auth/token.
	AdminKey  string
	JWTSecret string
	TokenTTL  time.Duration

	CORSOrigins []string
	// CIDRs or IPs whose X-Forwarded-For is believed. Empty means the
	// socket address is the client address.
	TrustedProxies []string

	VoteWeights [3]int

	PresenceIdle time.Duration
	ResetHour    int
	ResetMinute  int
	ResetZone    *time.Location

	CloudinaryCloud  string
	CloudinaryKey    string
	CloudinarySecret string
	CloudinaryFolder string
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	weights, err := parseWeights(getEnv("VOTE_WEIGHTS", "5,3,1"))
	if err != nil {
		return nil, err
	}

	zone, err := time.LoadLocation(getEnv("RESET_TZ", "Local"))
	if err != nil {
		return nil, fmt.Errorf("RESET_TZ: %w", err)
	}

	cfg := &Config{
		Port:   getEnv("PORT", "8080"),
		Env:    strings.ToLower(getEnv("ENV", "development")),
		LogDir: os.Getenv("LOG_DIR"),

		MongoURI:  os.Getenv("MONGO_URI"),
		DBName:    getEnv("DB_NAME", "labapp"),
		OpTimeout: time.Duration(getEnvInt("DB_TIMEOUT_SECONDS", 5)) * time.Second,

		APIKey:       os.Getenv("API_KEY"),
		GateLocation: getEnvBool("GATE_LOCATION", false),
		AdminKey:     os.Getenv("ADMIN_KEY"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		TokenTTL:     time.Duration(getEnvInt("TOKEN_TTL_HOURS", 12)) * time.Hour,

		CORSOrigins:    splitCSV(getEnv("CORS_ORIGINS", "*")),
		TrustedProxies: splitCSV(os.Getenv("TRUSTED_PROXIES")),

		VoteWeights: weights,

		PresenceIdle: time.Duration(getEnvInt("PRESENCE_IDLE_MINUTES", 120)) * time.Minute,
		ResetHour:    clamp(getEnvInt("RESET_HOUR", 2), 0, 23),
		ResetMinute:  clamp(getEnvInt("RESET_MINUTE", 0), 0, 59),
		ResetZone:    zone,

		CloudinaryCloud:  os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinarySecret: os.Getenv("CLOUDINARY_API_SECRET"),
		CloudinaryFolder: getEnv("CLOUDINARY_FOLDER", "voting"),
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) Addr() string {
	return ":" + c.Port
}

// CloudinaryEnabled reports whether image uploads can be attempted.
func (c *Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloud != "" && c.CloudinaryKey != "" && c.CloudinarySecret != ""
}

// ConnectMongo dials MONGO_URI, pings the primary and stores the client.
func (c *Config) ConnectMongo(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.MongoURI).SetRetryWrites(true))
	if err != nil {
		return fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("mongo ping: %w", err)
	}
	c.MongoClient = client
	return nil
}

// parseWeights reads "first,second,third", e.g. "5,3,1" or "3,2,1".
func parseWeights(v string) ([3]int, error) {
	var out [3]int
	parts := splitCSV(v)
	if len(parts) != 3 {
		return out, fmt.Errorf("VOTE_WEIGHTS: want 3 comma separated values, got %q", v)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return out, fmt.Errorf("VOTE_WEIGHTS: invalid weight %q", p)
		}
		out[i] = n
	}
	return out, nil
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
