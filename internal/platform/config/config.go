package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config captures process-level configuration so main stays lean. Postgres
// and Kafka are optional: without them the service runs on the in-memory
// registry and keeps the audit trail in process only.
type Config struct {
	Addr          string `envconfig:"AIDLEDGER_ADDR" default:":8080"`
	JWTSigningKey string `envconfig:"JWT_SIGNING_KEY" default:"dev-secret-key-change-in-production"`
	JWTIssuer     string `envconfig:"JWT_ISSUER" default:"aidledger"`

	// EscrowAccount is the ledger account holding value between approval and
	// redemption. EscrowFunding seeds it at startup for development setups.
	EscrowAccount string `envconfig:"ESCROW_ACCOUNT" default:"escrow"`
	EscrowFunding uint64 `envconfig:"ESCROW_FUNDING" default:"0"`

	PostgresURL string `envconfig:"POSTGRES_URL"`

	KafkaBrokers    []string `envconfig:"KAFKA_BROKERS"`
	KafkaAuditTopic string   `envconfig:"KAFKA_AUDIT_TOPIC" default:"aidledger.audit.events"`
}

// FromEnv builds the configuration from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config from environment: %w", err)
	}
	return cfg, nil
}
