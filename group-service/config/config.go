package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/draftea/group-coordinator/group-service/application"
	"github.com/draftea/group-coordinator/group-service/domain"
	"github.com/draftea/group-coordinator/group-service/infrastructure"
	sharedinfra "github.com/draftea/group-coordinator/shared/infrastructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	QueueSQS    = "sqs"
	QueueRedis  = "redis"
	QueueMemory = "memory"

	ScopeAll  = "all"
	ScopeLast = "last"
)

type Config struct {
	ServiceName  string                     `mapstructure:"service_name"`
	Env          string                     `mapstructure:"env"`
	Port         string                     `mapstructure:"port"`
	LogLevel     string                     `mapstructure:"log_level"`
	LogFormat    string                     `mapstructure:"log_format"`
	Nodes        []string                   `mapstructure:"nodes"`
	Retry        Retry                      `mapstructure:"retry"`
	NodeClient   NodeClient                 `mapstructure:"node_client"`
	Saga         Saga                       `mapstructure:"saga"`
	Compensation Compensation               `mapstructure:"compensation"`
	AWS          AWS                        `mapstructure:"aws"`
	Redis        infrastructure.RedisConfig `mapstructure:"redis"`
	Database     Database                   `mapstructure:"database"`
	Telemetry    Telemetry                  `mapstructure:"telemetry"`
}

type Retry struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

type NodeClient struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Scheme         string        `mapstructure:"scheme"`
}

type Saga struct {
	ProbeOnConflict           bool   `mapstructure:"probe_on_conflict"`
	CompensationScope         string `mapstructure:"compensation_scope"`
	CompensateOnAlreadyExists bool   `mapstructure:"compensate_on_already_exists"`
}

type Compensation struct {
	Delay       time.Duration `mapstructure:"delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Queue       string        `mapstructure:"queue"`
	QueueURL    string        `mapstructure:"queue_url"`
	Workers     int           `mapstructure:"workers"`
}

type AWS struct {
	Region      string `mapstructure:"region"`
	Endpoint    string `mapstructure:"endpoint"`
	SNSTopicArn string `mapstructure:"sns_topic_arn"`
}

type Database struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type Telemetry struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// ReadConfig loads <ENVIRONMENT>.json next to this file, then applies
// GROUP_* environment overrides
func ReadConfig() (*Config, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return nil, fmt.Errorf("unable to get current file")
	}

	return Load(filepath.Dir(filename))
}

// Load reads the configuration from configDir. A missing file leaves
// defaults and environment variables in place.
func Load(configDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(getConfigName())
	v.SetConfigType("json")
	v.AddConfigPath(configDir)

	v.SetEnvPrefix("GROUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.Nodes = NormalizeHosts(config.Nodes)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func getConfigName() string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		return "local"
	}
	return env
}

// setDefaults keeps the HOSTS and PORT variables working for older deployments
func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "group-coordinator")
	v.SetDefault("env", getEnv("ENV", "local"))
	v.SetDefault("port", getEnv("PORT", "8080"))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("nodes", []string{"localhost"})
	if hosts := os.Getenv("HOSTS"); hosts != "" {
		v.Set("nodes", strings.Split(hosts, ","))
	}

	retry := domain.DefaultRetryPolicy()
	v.SetDefault("retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("retry.base_delay", retry.BaseDelay)
	v.SetDefault("retry.max_delay", retry.MaxDelay)

	v.SetDefault("node_client.request_timeout", 10*time.Second)
	v.SetDefault("node_client.scheme", "http")

	v.SetDefault("saga.probe_on_conflict", true)
	v.SetDefault("saga.compensation_scope", ScopeAll)
	v.SetDefault("saga.compensate_on_already_exists", false)

	v.SetDefault("compensation.delay", application.DefaultCompensationDelay)
	v.SetDefault("compensation.max_attempts", 0)
	v.SetDefault("compensation.queue", QueueMemory)
	v.SetDefault("compensation.queue_url", getEnv("SQS_QUEUE_URL", ""))
	v.SetDefault("compensation.workers", 2)

	v.SetDefault("aws.region", getEnv("AWS_DEFAULT_REGION", "us-east-1"))
	v.SetDefault("aws.endpoint", getEnv("AWS_ENDPOINT_URL", ""))
	v.SetDefault("aws.sns_topic_arn", getEnv("SNS_TOPIC_ARN", ""))

	v.SetDefault("redis.addr", getEnv("REDIS_ADDR", "localhost:6379"))
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "group-coordinator:compensations")
	v.SetDefault("redis.poll_interval", time.Second)
	v.SetDefault("redis.batch_size", 10)
	v.SetDefault("redis.lease", infrastructure.DefaultRedisLease)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.url", getEnv("DATABASE_URL", ""))
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "group_coordinator")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// NormalizeHosts trims node hosts and drops empty entries, keeping order
func NormalizeHosts(hosts []string) []string {
	normalized := make([]string, 0, len(hosts))
	for _, host := range hosts {
		if host = strings.TrimSpace(host); host != "" {
			normalized = append(normalized, host)
		}
	}
	return normalized
}

func (c *Config) Validate() error {
	if len(c.Nodes) == 0 {
		return errors.New("at least one node host is required")
	}

	if err := c.RetryPolicy().Validate(); err != nil {
		return err
	}

	if c.NodeClient.RequestTimeout <= 0 {
		return errors.New("node client request timeout must be positive")
	}

	switch c.Saga.CompensationScope {
	case ScopeAll, ScopeLast:
	default:
		return errors.Errorf("unknown compensation scope %q", c.Saga.CompensationScope)
	}

	if c.Compensation.MaxAttempts < 0 {
		return errors.New("compensation max attempts must not be negative")
	}

	switch c.Compensation.Queue {
	case QueueMemory, QueueRedis:
	case QueueSQS:
		if c.Compensation.QueueURL == "" {
			return errors.New("compensation.queue_url is required for the sqs queue")
		}
	default:
		return errors.Errorf("unknown compensation queue %q", c.Compensation.Queue)
	}

	return nil
}

func (c *Config) RetryPolicy() domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
	}
}

func (c *Config) SagaOptions() application.SagaOptions {
	return application.SagaOptions{
		ProbeOnConflict:           c.Saga.ProbeOnConflict,
		CompensateLastOnly:        c.Saga.CompensationScope == ScopeLast,
		CompensateOnAlreadyExists: c.Saga.CompensateOnAlreadyExists,
	}
}

func (c *Config) NodeHosts() []domain.Node {
	nodes := make([]domain.Node, len(c.Nodes))
	for i, host := range c.Nodes {
		nodes[i] = domain.Node(host)
	}
	return nodes
}

func (c *Config) AWSConfig() sharedinfra.AWSConfig {
	return sharedinfra.AWSConfig{Region: c.AWS.Region, Endpoint: c.AWS.Endpoint}
}

// GetDatabaseURL returns database.url when set, else builds one from the parts
func (c *Config) GetDatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}
