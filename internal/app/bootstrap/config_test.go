package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", StorageDriverMemory)
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := LoadConfig("testdata/does-not-exist.yaml")
	if err != nil {
		t.Fatalf("expected defaults, got err=%v", err)
	}
	if cfg.ServiceID != "M24-Retail-Ordering-Service" {
		t.Fatalf("unexpected service id: %s", cfg.ServiceID)
	}
	if cfg.HTTPPort != 8080 || cfg.GRPCPort != 9090 {
		t.Fatalf("unexpected ports: http=%d grpc=%d", cfg.HTTPPort, cfg.GRPCPort)
	}
	if cfg.CartTTL != 2*time.Hour {
		t.Fatalf("expected 2h cart ttl, got %s", cfg.CartTTL)
	}
	if cfg.StockMovementHistorySize != 20 {
		t.Fatalf("expected movement history 20, got %d", cfg.StockMovementHistorySize)
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
service:
  id: retail-test
  http_port: 18080
storage:
  driver: postgres
dependencies:
  postgres_url: postgres://file/db
  redis_url: redis://file:6379/0
  kafka_brokers: [" k1:9092 ", ""]
ordering:
  cart_ttl_minutes: 30
  order_list_limit: 10
auth:
  jwt_issuer: retail
`)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_URL", "postgres://env/db")
	t.Setenv("ORDER_LIST_LIMIT", "25")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceID != "retail-test" || cfg.HTTPPort != 18080 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.DatabaseURL != "postgres://env/db" {
		t.Fatalf("env should override file database url, got %s", cfg.DatabaseURL)
	}
	if cfg.RedisURL != "redis://file:6379/0" {
		t.Fatalf("unexpected redis url %s", cfg.RedisURL)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "k1:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.CartTTL != 30*time.Minute {
		t.Fatalf("expected 30m cart ttl, got %s", cfg.CartTTL)
	}
	if cfg.OrderListLimit != 25 {
		t.Fatalf("expected env order list limit 25, got %d", cfg.OrderListLimit)
	}
	if cfg.JWTIssuer != "retail" {
		t.Fatalf("unexpected issuer %s", cfg.JWTIssuer)
	}
}

func TestLoadConfigRejectsBadFile(t *testing.T) {
	path := writeConfig(t, "service: [unterminated")
	t.Setenv("JWT_SECRET", "secret")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse failure")
	}
}

func TestValidateConfig(t *testing.T) {
	cases := map[string]Config{
		"postgres without database": {StorageDriver: StorageDriverPostgres, RedisURL: "redis://x", JWTSecret: "s"},
		"postgres without redis":    {StorageDriver: StorageDriverPostgres, DatabaseURL: "postgres://x", JWTSecret: "s"},
		"unknown driver":            {StorageDriver: "sqlite", JWTSecret: "s"},
		"missing secret":            {StorageDriver: StorageDriverMemory},
	}
	for name, cfg := range cases {
		if err := cfg.validate(); err == nil {
			t.Fatalf("%s: expected validation failure", name)
		}
	}
	if err := (Config{StorageDriver: StorageDriverMemory, JWTSecret: "s"}).validate(); err != nil {
		t.Fatalf("memory config should validate: %v", err)
	}
}

func TestNewRuntimeInMemory(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", StorageDriverMemory)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("KAFKA_BROKERS", "")

	runtime, err := NewRuntime(context.Background(), "testdata/does-not-exist.yaml")
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	t.Cleanup(func() { runtime.cleanupFn(context.Background()) })
	if runtime.httpServer.Addr != ":8080" || runtime.grpcAddr != ":9090" {
		t.Fatalf("unexpected addresses http=%s grpc=%s", runtime.httpServer.Addr, runtime.grpcAddr)
	}
	if runtime.outbox == nil || runtime.consumer == nil || runtime.expiry == nil {
		t.Fatal("expected workers to be wired")
	}
}
