package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string
	GenesisPath     string
	// Admin overrides the genesis admin identity when set.
	Admin string

	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Settlement SettlementConfig
}

// DatabaseConfig configures the Postgres audit outbox. An empty URL disables it.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the settlement reference store. An empty URL keeps
// references in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeyPrefix    string
	ReferenceTTL time.Duration
}

// KafkaConfig configures the audit relay and the settlement consumer. No
// brokers disables both.
type KafkaConfig struct {
	Brokers          []string
	SettlementTopic  string
	AuditTopicPrefix string
	ConsumerGroup    string
	RelayInterval    time.Duration
	RelayBatchSize   int
}

// SettlementConfig holds the key used to verify signed settlement instructions.
type SettlementConfig struct {
	SigningKey string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:            envString("LEDGER_ADDR", ":8080"),
		ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:        envString("LOG_LEVEL", "info"),
		LogFormat:       envString("LOG_FORMAT", "json"),
		GenesisPath:     os.Getenv("GENESIS_PATH"),
		Admin:           os.Getenv("LEDGER_ADMIN"),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			KeyPrefix:    envString("REDIS_KEY_PREFIX", "ledger:settlement:"),
			ReferenceTTL: envDuration("SETTLEMENT_REFERENCE_TTL", 0),
		},
		Kafka: KafkaConfig{
			Brokers:          envList("KAFKA_BROKERS"),
			SettlementTopic:  envString("KAFKA_SETTLEMENT_TOPIC", "ledger.settlement.instructions"),
			AuditTopicPrefix: envString("KAFKA_AUDIT_TOPIC_PREFIX", "ledger.audit"),
			ConsumerGroup:    envString("KAFKA_CONSUMER_GROUP", "ledger"),
			RelayInterval:    envDuration("OUTBOX_RELAY_INTERVAL", time.Second),
			RelayBatchSize:   envInt("OUTBOX_RELAY_BATCH_SIZE", 100),
		},
		Settlement: SettlementConfig{
			SigningKey: os.Getenv("SETTLEMENT_SIGNING_KEY"),
		},
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
