// Package config provides application configuration management using
// environment variables, loaded with github.com/kelseyhightower/envconfig.
//
// # Environment Variables
//
//	SQLALCHEMY_DATABASE_URI - main cluster-store connection string (required)
//	MB_DATABASE_URI         - MusicBrainz read replica connection string (required)
//	RABBITMQ_HOST           - broker host
//	RABBITMQ_PORT           - broker port (default: 5672)
//	RABBITMQ_USERNAME       - broker username (default: guest)
//	RABBITMQ_PASSWORD       - broker password (default: guest)
//	RABBITMQ_VHOST          - broker virtual host (default: /)
//	INCOMING_EXCHANGE       - fanout exchange listens are submitted to (default: incoming)
//	INCOMING_QUEUE          - durable queue bound to INCOMING_EXCHANGE (default: incoming)
//	UNIQUE_EXCHANGE         - fanout exchange processed listens are republished to (default: unique)
//	ERROR_RETRY_DELAY       - delay between DB/broker connect retries (default: 3s)
//	LOGGING_LEVEL           - debug, info, warn, error (default: info)
//	LOGGING_FORMAT          - json, text (default: json)
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the clustering worker's full configuration. Every nested
// section is embedded anonymously so envconfig reads each leaf field's
// fully-qualified tag verbatim instead of prefixing it with the section's
// Go field name.
type Config struct {
	Database
	MusicBrainzDB
	Broker
	Topology
	Logging
	ErrorRetryDelay time.Duration `envconfig:"ERROR_RETRY_DELAY" default:"3s"`
}

// Database holds the main cluster-store connection string, matching the
// specification's SQLALCHEMY_DATABASE_URI configuration key.
type Database struct {
	URI string `envconfig:"SQLALCHEMY_DATABASE_URI" required:"true"`
}

// MusicBrainzDB holds the MusicBrainz replica connection string, matching
// the specification's MB_DATABASE_URI configuration key.
type MusicBrainzDB struct {
	URI string `envconfig:"MB_DATABASE_URI" required:"true"`
}

// Broker holds RabbitMQ connection credentials.
type Broker struct {
	Host     string `envconfig:"RABBITMQ_HOST"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	Username string `envconfig:"RABBITMQ_USERNAME" default:"guest"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"guest"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

// AMQPURI returns the amqp:// connection URI for this broker configuration.
func (b Broker) AMQPURI() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s", b.Username, b.Password, b.Host, b.Port, b.VHost)
}

// Topology names the exchanges and queue the worker declares and binds.
type Topology struct {
	IncomingExchange string `envconfig:"INCOMING_EXCHANGE" default:"incoming"`
	IncomingQueue    string `envconfig:"INCOMING_QUEUE" default:"incoming"`
	UniqueExchange   string `envconfig:"UNIQUE_EXCHANGE" default:"unique"`
}

// Logging holds the structured logger's level and format settings. The
// commands under cmd/ create their loggers with logging.New() defaults and
// do not apply these values.
type Logging struct {
	Level  string `envconfig:"LOGGING_LEVEL" default:"info"`
	Format string `envconfig:"LOGGING_FORMAT" default:"json"`
}

// Load reads configuration from the process environment. No prefix is
// applied: the keys above are read verbatim, matching the specification's
// configuration surface.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return &cfg, nil
}

// HasBrokerHost reports whether a RabbitMQ host was configured. The worker
// treats a missing host as a startup error distinct from required-field
// validation: it must log-and-sleep before exiting rather than failing Load
// outright (specification §6, "CLI surface").
func (c *Config) HasBrokerHost() bool {
	return c.Broker.Host != ""
}
