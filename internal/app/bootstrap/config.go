package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	StorageDriver string
	DatabaseURL   string
	MaxDBConns    int32
	RedisURL      string

	KafkaBrokers             []string
	KafkaConsumerGroup       string
	KafkaTopicCatalog        string
	KafkaTopicAgency         string
	KafkaTopicOrders         string
	KafkaTopicAllocations    string
	OutboxPollInterval       time.Duration
	OutboxBatchSize          int
	ConsumerPollInterval     time.Duration
	CartSweepInterval        time.Duration
	CartTTL                  time.Duration
	IdempotencyTTL           time.Duration
	EventDedupTTL            time.Duration
	OrderListLimit           int
	StockMovementHistorySize int

	JWTSecret string
	JWTIssuer string
}

type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Storage struct {
		Driver     string `yaml:"driver"`
		MaxDBConns int32  `yaml:"max_db_conns"`
	} `yaml:"storage"`
	Dependencies struct {
		PostgresURL           string   `yaml:"postgres_url"`
		RedisURL              string   `yaml:"redis_url"`
		KafkaBrokers          []string `yaml:"kafka_brokers"`
		KafkaConsumerGroup    string   `yaml:"kafka_consumer_group"`
		KafkaTopicCatalog     string   `yaml:"kafka_topic_catalog"`
		KafkaTopicAgency      string   `yaml:"kafka_topic_agency"`
		KafkaTopicOrders      string   `yaml:"kafka_topic_orders"`
		KafkaTopicAllocations string   `yaml:"kafka_topic_allocations"`
	} `yaml:"dependencies"`
	Ordering struct {
		CartTTLMinutes      int `yaml:"cart_ttl_minutes"`
		CartSweepSeconds    int `yaml:"cart_sweep_seconds"`
		OrderListLimit      int `yaml:"order_list_limit"`
		StockMovementsLimit int `yaml:"stock_movements_limit"`
	} `yaml:"ordering"`
	Auth struct {
		JWTIssuer string `yaml:"jwt_issuer"`
	} `yaml:"auth"`
}

// LoadConfig reads defaults, then the YAML file at path when it exists, then
// environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:                "M24-Retail-Ordering-Service",
		HTTPPort:                 8080,
		GRPCPort:                 9090,
		StorageDriver:            StorageDriverPostgres,
		MaxDBConns:               20,
		KafkaConsumerGroup:       "m24-retail-ordering-service",
		KafkaTopicCatalog:        "retail.catalog.v1",
		KafkaTopicAgency:         "retail.agency.v1",
		KafkaTopicOrders:         "retail.orders.v1",
		KafkaTopicAllocations:    "retail.allocations.v1",
		OutboxPollInterval:       2 * time.Second,
		OutboxBatchSize:          100,
		ConsumerPollInterval:     2 * time.Second,
		CartSweepInterval:        time.Minute,
		CartTTL:                  2 * time.Hour,
		IdempotencyTTL:           7 * 24 * time.Hour,
		EventDedupTTL:            7 * 24 * time.Hour,
		OrderListLimit:           50,
		StockMovementHistorySize: 20,
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := applyFile(&cfg, raw); err != nil {
			return Config{}, err
		}
	case !os.IsNotExist(err):
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg.StorageDriver = strings.ToLower(envOrDefault("STORAGE_DRIVER", cfg.StorageDriver))
	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaConsumerGroup = envOrDefault("KAFKA_CONSUMER_GROUP", cfg.KafkaConsumerGroup)
	cfg.KafkaTopicCatalog = envOrDefault("KAFKA_TOPIC_CATALOG", cfg.KafkaTopicCatalog)
	cfg.KafkaTopicAgency = envOrDefault("KAFKA_TOPIC_AGENCY", cfg.KafkaTopicAgency)
	cfg.KafkaTopicOrders = envOrDefault("KAFKA_TOPIC_ORDERS", cfg.KafkaTopicOrders)
	cfg.KafkaTopicAllocations = envOrDefault("KAFKA_TOPIC_ALLOCATIONS", cfg.KafkaTopicAllocations)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.ConsumerPollInterval = time.Duration(envInt("CONSUMER_POLL_SECONDS", int(cfg.ConsumerPollInterval.Seconds()))) * time.Second
	cfg.CartTTL = time.Duration(envInt("CART_TTL_MINUTES", int(cfg.CartTTL.Minutes()))) * time.Minute
	cfg.CartSweepInterval = time.Duration(envInt("CART_SWEEP_SECONDS", int(cfg.CartSweepInterval.Seconds()))) * time.Second
	cfg.IdempotencyTTL = time.Duration(envInt("IDEMPOTENCY_TTL_HOURS", int(cfg.IdempotencyTTL.Hours()))) * time.Hour
	cfg.EventDedupTTL = time.Duration(envInt("EVENT_DEDUP_TTL_HOURS", int(cfg.EventDedupTTL.Hours()))) * time.Hour
	cfg.OrderListLimit = envInt("ORDER_LIST_LIMIT", cfg.OrderListLimit)
	cfg.JWTSecret = envOrDefault("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTIssuer = envOrDefault("JWT_ISSUER", cfg.JWTIssuer)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Storage.Driver != "" {
		cfg.StorageDriver = f.Storage.Driver
	}
	if f.Storage.MaxDBConns > 0 {
		cfg.MaxDBConns = f.Storage.MaxDBConns
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = trimNonEmpty(f.Dependencies.KafkaBrokers)
	}
	if f.Dependencies.KafkaConsumerGroup != "" {
		cfg.KafkaConsumerGroup = f.Dependencies.KafkaConsumerGroup
	}
	if f.Dependencies.KafkaTopicCatalog != "" {
		cfg.KafkaTopicCatalog = f.Dependencies.KafkaTopicCatalog
	}
	if f.Dependencies.KafkaTopicAgency != "" {
		cfg.KafkaTopicAgency = f.Dependencies.KafkaTopicAgency
	}
	if f.Dependencies.KafkaTopicOrders != "" {
		cfg.KafkaTopicOrders = f.Dependencies.KafkaTopicOrders
	}
	if f.Dependencies.KafkaTopicAllocations != "" {
		cfg.KafkaTopicAllocations = f.Dependencies.KafkaTopicAllocations
	}
	if f.Ordering.CartTTLMinutes > 0 {
		cfg.CartTTL = time.Duration(f.Ordering.CartTTLMinutes) * time.Minute
	}
	if f.Ordering.CartSweepSeconds > 0 {
		cfg.CartSweepInterval = time.Duration(f.Ordering.CartSweepSeconds) * time.Second
	}
	if f.Ordering.OrderListLimit > 0 {
		cfg.OrderListLimit = f.Ordering.OrderListLimit
	}
	if f.Ordering.StockMovementsLimit > 0 {
		cfg.StockMovementHistorySize = f.Ordering.StockMovementsLimit
	}
	if f.Auth.JWTIssuer != "" {
		cfg.JWTIssuer = f.Auth.JWTIssuer
	}
	return nil
}

func (c Config) validate() error {
	switch c.StorageDriver {
	case StorageDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("missing DB_URL/POSTGRES_URL")
		}
		if c.RedisURL == "" {
			return fmt.Errorf("missing REDIS_URL")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("missing JWT_SECRET")
	}
	return nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	return trimNonEmpty(strings.Split(raw, ","))
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
