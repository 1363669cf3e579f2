package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	GRPC         GRPCConfig         `yaml:"grpc"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Razorpay     RazorpayConfig     `yaml:"razorpay"`
	Pricing      PricingConfig      `yaml:"pricing"`
	Auth         AuthConfig         `yaml:"auth"`
	Registration RegistrationConfig `yaml:"registration"`
	Worker       WorkerConfig       `yaml:"worker"`
	Mail         MailConfig         `yaml:"mail"`
	Log          LogConfig          `yaml:"log"`
}

type HTTPConfig struct {
	Address        string   `yaml:"address"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	PaymentsTopic string   `yaml:"payments_topic"`
	ReceiptsTopic string   `yaml:"receipts_topic"`
	GroupID       string   `yaml:"group_id"`
}

type RazorpayConfig struct {
	KeyID     string `yaml:"key_id"`
	KeySecret string `yaml:"key_secret"`
}

type PricingConfig struct {
	BasePrice int64  `yaml:"base_price"`
	Currency  string `yaml:"currency"`
}

type AuthConfig struct {
	SessionSecret string `yaml:"session_secret"`
	AdminRole     string `yaml:"admin_role"`
}

type RegistrationConfig struct {
	MaxPhotoBytes  int64 `yaml:"max_photo_bytes"`
	MaxIDCardBytes int64 `yaml:"max_id_card_bytes"`
	// Idempotency key lifetime for order creation.
	IdempotencyTTLMinutes int `yaml:"idempotency_ttl_minutes"`
}

type WorkerConfig struct {
	ExpirationSweepMinutes int `yaml:"expiration_sweep_minutes"`
	OrderTTLMinutes        int `yaml:"order_ttl_minutes"`
}

// MailConfig configures receipt e-mails. An empty API key logs mails instead of sending them.
type MailConfig struct {
	APIKey    string `yaml:"api_key"`
	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func (w WorkerConfig) OrderTTL() time.Duration {
	return time.Duration(w.OrderTTLMinutes) * time.Minute
}

func (w WorkerConfig) SweepInterval() time.Duration {
	return time.Duration(w.ExpirationSweepMinutes) * time.Minute
}

func (r RegistrationConfig) IdempotencyTTL() time.Duration {
	return time.Duration(r.IdempotencyTTLMinutes) * time.Minute
}

// Path returns the config file location, honouring CONFIG_PATH.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML and fills defaults. It does not read the environment.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.GRPC.Address == "" {
		c.GRPC.Address = ":9090"
	}
	if c.Pricing.BasePrice == 0 {
		c.Pricing.BasePrice = 500
	}
	if c.Pricing.Currency == "" {
		c.Pricing.Currency = "INR"
	}
	if c.Auth.AdminRole == "" {
		c.Auth.AdminRole = "ADMIN"
	}
	if c.Registration.MaxPhotoBytes == 0 {
		c.Registration.MaxPhotoBytes = 5_000_000
	}
	if c.Registration.MaxIDCardBytes == 0 {
		c.Registration.MaxIDCardBytes = 3_000_000
	}
	if c.Registration.IdempotencyTTLMinutes == 0 {
		c.Registration.IdempotencyTTLMinutes = 30
	}
	if c.Worker.ExpirationSweepMinutes == 0 {
		c.Worker.ExpirationSweepMinutes = 5
	}
	if c.Worker.OrderTTLMinutes == 0 {
		c.Worker.OrderTTLMinutes = 60
	}
	if c.Kafka.PaymentsTopic == "" {
		c.Kafka.PaymentsTopic = "tedx.payments"
	}
	if c.Kafka.ReceiptsTopic == "" {
		c.Kafka.ReceiptsTopic = "tedx.receipts"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "tedx-worker"
	}
	if c.Mail.FromName == "" {
		c.Mail.FromName = "TEDx Registrations"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("RAZORPAY_KEY_ID"); v != "" {
		c.Razorpay.KeyID = v
	}
	if v := os.Getenv("RAZORPAY_KEY_SECRET"); v != "" {
		c.Razorpay.KeySecret = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		c.Auth.SessionSecret = v
	}
	if v := os.Getenv("MAILERSEND_API_KEY"); v != "" {
		c.Mail.APIKey = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Razorpay.KeyID == "" || c.Razorpay.KeySecret == "" {
		errs = append(errs, errors.New("razorpay key id and secret are required"))
	}
	if c.Auth.SessionSecret == "" {
		errs = append(errs, errors.New("auth session secret is required"))
	}
	if c.Pricing.BasePrice <= 0 {
		errs = append(errs, errors.New("pricing base price must be positive"))
	}
	if c.Pricing.Currency != "INR" {
		errs = append(errs, fmt.Errorf("unsupported currency %q", c.Pricing.Currency))
	}
	return errors.Join(errs...)
}
