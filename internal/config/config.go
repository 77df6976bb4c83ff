package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Storage drivers
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Cascade modes for comment deletion
const (
	CascadeSubtree = "subtree"
	CascadeDirect  = "direct"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	ServerPort string

	JWTSecret         string
	AccessTokenMaxAge int

	// StorageDriver selects where comments live. Users, posts and notifications
	// stay in Postgres unless the driver is "memory".
	StorageDriver string
	MongoURI      string
	MongoDatabase string

	// RedisURL is optional; when empty the thread cache, the event stream and
	// the worker are disabled.
	RedisURL string

	ThreadPolicy       string
	ThreadPolicyByRole map[string]string
	ThreadCacheTTL     int

	CommentCascade string
	WorkerCount    int

	LogLevel  string
	LogFormat string
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	accessTokenMaxAge, err := strconv.Atoi(os.Getenv("ACCESS_TOKEN_MAX_AGE"))
	if err != nil || accessTokenMaxAge <= 0 {
		accessTokenMaxAge = 900
	}

	threadCacheTTL, err := strconv.Atoi(os.Getenv("THREAD_CACHE_TTL"))
	if err != nil || threadCacheTTL <= 0 {
		threadCacheTTL = 60
	}

	workerCount, err := strconv.Atoi(os.Getenv("WORKER_COUNT"))
	if err != nil || workerCount <= 0 {
		workerCount = 2
	}

	driver := strings.ToLower(getEnv("STORAGE_DRIVER", DriverPostgres))
	switch driver {
	case DriverPostgres, DriverMongo, DriverMemory:
	default:
		return nil, fmt.Errorf("invalid STORAGE_DRIVER %q", driver)
	}

	cascade := strings.ToLower(getEnv("COMMENT_CASCADE", CascadeSubtree))
	if cascade != CascadeSubtree && cascade != CascadeDirect {
		return nil, fmt.Errorf("invalid COMMENT_CASCADE %q", cascade)
	}

	byRole, err := ParseRolePolicies(os.Getenv("THREAD_POLICY_BY_ROLE"))
	if err != nil {
		return nil, fmt.Errorf("invalid THREAD_POLICY_BY_ROLE: %w", err)
	}

	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  getEnv("DB_SSLMODE", "require"),

		ServerPort: getEnv("SERVER_PORT", "8080"),

		JWTSecret:         os.Getenv("JWT_SECRET"),
		AccessTokenMaxAge: accessTokenMaxAge,

		StorageDriver: driver,
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "schoolportal"),

		RedisURL: os.Getenv("REDIS_URL"),

		ThreadPolicy:       strings.ToLower(getEnv("THREAD_POLICY", "unbounded")),
		ThreadPolicyByRole: byRole,
		ThreadCacheTTL:     threadCacheTTL,

		CommentCascade: cascade,
		WorkerCount:    workerCount,

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}, nil
}

// ParseRolePolicies parses "role:policy,role:policy" into a map.
// Policy names are validated by the thread package at wiring time.
func ParseRolePolicies(raw string) (map[string]string, error) {
	out := make(map[string]string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		role, policy, ok := strings.Cut(strings.TrimSpace(pair), ":")
		role = strings.ToLower(strings.TrimSpace(role))
		policy = strings.ToLower(strings.TrimSpace(policy))
		if !ok || role == "" || policy == "" {
			return nil, fmt.Errorf("malformed entry %q", pair)
		}
		out[role] = policy
	}
	return out, nil
}

// PostgresDSN builds the lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
