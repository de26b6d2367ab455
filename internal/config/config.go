// Package config предоставялет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Tochka                  `yaml:"tochka"`
	Pricing                 `yaml:"pricing"`
	Cron                    `yaml:"cron"`
	RabbitMQ                `yaml:"rabbitmq"`
	SMTP                    `yaml:"smtp"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"30s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis   string        `yaml:"addressredis"`
	Password       string        `yaml:"password" env:"REDIS_PASSWORD"`
	User           string        `yaml:"user"`
	DB             int           `yaml:"db"`
	MaxRetries     int           `yaml:"max_retries"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	TimeoutRedis   time.Duration `yaml:"timeoutredis"`
	EntitlementTTL time.Duration `yaml:"entitlement_ttl" env-default:"5m"`
}

// JWTToken структура для проверки сессионного jwt-токена
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

// Tochka настройки интернет-эквайринга Точка Банка
type Tochka struct {
	BaseURL         string        `yaml:"base_url" env-default:"https://enter.tochka.com/uapi"`
	APIToken        string        `yaml:"api_token" env:"TOCHKA_API_TOKEN"`
	CustomerCode    string        `yaml:"customer_code" env:"TOCHKA_CUSTOMER_CODE"`
	WebhookSecret   string        `yaml:"webhook_secret" env:"TOCHKA_WEBHOOK_SECRET"`
	PaymentModes    []string      `yaml:"payment_modes" env-default:"sbp,card"`
	RedirectURL     string        `yaml:"redirect_url"`
	FailRedirectURL string        `yaml:"fail_redirect_url"`
	LinkTTL         time.Duration `yaml:"link_ttl" env-default:"60m"`
	Timeout         time.Duration `yaml:"timeout" env-default:"15s"`
}

// Pricing серверная таблица цен и лимитов. Цены из запроса клиента не принимаются.
type Pricing struct {
	AdvancedPrice      float64 `yaml:"advanced_price" env-default:"1000"`
	AdvancedLimit      int     `yaml:"advanced_limit" env-default:"100"`
	ProPrice           float64 `yaml:"pro_price" env-default:"0"`
	ProLimit           int     `yaml:"pro_limit" env-default:"300"`
	BonusPackPrice     float64 `yaml:"bonus_pack_price" env-default:"300"`
	BonusPackSize      int     `yaml:"bonus_pack_size" env-default:"30"`
	SubscriptionMonths int     `yaml:"subscription_months" env-default:"1"`
}

// Cron настройки фоновой сверки зависших платежей
type Cron struct {
	SecretToken string        `yaml:"secret_token" env:"CRON_SECRET_TOKEN"`
	Schedule    string        `yaml:"schedule" env-default:"@every 5m"`
	Debounce    time.Duration `yaml:"debounce" env-default:"3m"`
	Lookback    time.Duration `yaml:"lookback" env-default:"72h"`
	BatchSize   int           `yaml:"batch_size" env-default:"100"`
}

// RabbitMQ настройки подключения к брокеру
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env-default:"3s"`
}

// SMTP настройки почтового транспорта уведомлений
type SMTP struct {
	SMTPHost   string `yaml:"host"`
	SMTPPort   string `yaml:"port" env-default:"587"`
	SMTPUser   string `yaml:"user"`
	SMTPPass   string `yaml:"password" env:"SMTP_PASSWORD"`
	AdminEmail string `yaml:"admin_email"`
}

// MustLoad функция для загрузки конфига, возвращает конфиг, сгенерированный из config/config.go
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %s", err)
	}
	return &cfg
}

// Validate проверяет обязательные секреты и согласованность таблицы цен.
func (c *Config) Validate() error {
	var errs []error
	if c.StorageConnectionString == "" {
		errs = append(errs, errors.New("storage_connection_string is required"))
	}
	if c.JWTSecretKey == "" {
		errs = append(errs, errors.New("jwt_secret_key is required"))
	}
	if c.Cron.SecretToken == "" {
		errs = append(errs, errors.New("CRON_SECRET_TOKEN is required"))
	}
	if c.Tochka.WebhookSecret == "" {
		errs = append(errs, errors.New("tochka webhook_secret is required"))
	}
	if c.AdvancedPrice <= 0 {
		errs = append(errs, fmt.Errorf("advanced_price must be positive, got %v", c.AdvancedPrice))
	}
	if c.BonusPackSize <= 0 {
		errs = append(errs, fmt.Errorf("bonus_pack_size must be positive, got %d", c.BonusPackSize))
	}
	if c.Cron.Debounce < 0 || c.Cron.Lookback <= c.Cron.Debounce {
		errs = append(errs, errors.New("cron lookback must be greater than debounce"))
	}
	return errors.Join(errs...)
}

// String печатает конфиг без секретов.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"MigrationsPath: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"Tochka:\n"+
			"  BaseURL: %s\n"+
			"  PaymentModes: %v\n"+
			"Pricing:\n"+
			"  Advanced: %.2f (%d)\n"+
			"  BonusPack: %.2f (%d)\n"+
			"Cron:\n"+
			"  Schedule: %s\n"+
			"  Debounce: %s\n",
		c.Env,
		c.MigrationsPath,
		c.AddressRedis,
		c.DB,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.BaseURL,
		c.PaymentModes,
		c.AdvancedPrice,
		c.AdvancedLimit,
		c.BonusPackPrice,
		c.BonusPackSize,
		c.Schedule,
		c.Debounce,
	)
}
