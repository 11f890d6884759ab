// Package config loads process configuration from the environment, reading
// a .env file first when one exists.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const minSecretLength = 32

var ErrWeakSecret = fmt.Errorf("JWT_SECRET must be at least %d characters long", minSecretLength)

// Client configures the storefront client.
type Client struct {
	GatewayBaseURL     string        `envconfig:"GATEWAY_BASE_URL"    default:"http://localhost:8080"`
	GatewayTimeout     time.Duration `envconfig:"GATEWAY_TIMEOUT"     default:"10s"`
	AccessToken        string        `envconfig:"ACCESS_TOKEN"`
	LogLevel           string        `envconfig:"LOG_LEVEL"           default:"info"`
	SerializeMutations bool          `envconfig:"SERIALIZE_MUTATIONS" default:"false"`
	KafkaBrokers       []string      `envconfig:"KAFKA_BROKERS"`
	KafkaTopic         string        `envconfig:"KAFKA_TOPIC"         default:"storefront-activity"`
}

// ActivityEnabled reports whether activity events go to Kafka.
func (c *Client) ActivityEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaTopic != ""
}

// DevServer configures the in-memory development backend.
type DevServer struct {
	Addr              string        `envconfig:"DEVSERVER_ADDR"       default:":8080"`
	JWTSecret         string        `envconfig:"JWT_SECRET"           required:"true"`
	AccessTokenExpiry time.Duration `envconfig:"ACCESS_TOKEN_EXPIRY"  default:"24h"`
	LogLevel          string        `envconfig:"LOG_LEVEL"            default:"info"`
	PasswordHashCost  int           `envconfig:"PASSWORD_HASH_COST"   default:"10"`
}

func LoadClient(logger logrus.FieldLogger) (*Client, error) {
	loadDotEnv(logger)

	var cfg Client
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process client configuration: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"gateway":   cfg.GatewayBaseURL,
		"timeout":   cfg.GatewayTimeout,
		"log_level": cfg.LogLevel,
		"activity":  cfg.ActivityEnabled(),
	}).Info("Configuration loaded")
	return &cfg, nil
}

func LoadDevServer(logger logrus.FieldLogger) (*DevServer, error) {
	loadDotEnv(logger)

	var cfg DevServer
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process devserver configuration: %w", err)
	}
	if len(cfg.JWTSecret) < minSecretLength {
		return nil, ErrWeakSecret
	}

	logger.WithFields(logrus.Fields{
		"addr":      cfg.Addr,
		"log_level": cfg.LogLevel,
	}).Info("Configuration loaded")
	return &cfg, nil
}

func loadDotEnv(logger logrus.FieldLogger) {
	err := godotenv.Load()
	switch {
	case err == nil:
		logger.Info("Loaded configuration from .env file")
	case !errors.Is(err, fs.ErrNotExist):
		logger.Warnf("Error loading .env file (but continuing): %v", err)
	}
}
