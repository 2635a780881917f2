package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8890"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"nps-engine"`

	// 后端 API 配置（权威存储都在后端，通过 REST 访问）
	BackendBaseURL  string `env:"BACKEND_BASE_URL"`
	BackendEmail    string `env:"BACKEND_EMAIL"`
	BackendPassword string `env:"BACKEND_PASSWORD"`
	BackendTimeout  int    `env:"BACKEND_TIMEOUT_SECONDS" envDefault:"30"`

	// WhatsApp 网关配置
	WhatsBaseURL string `env:"WHATS_BASE_URL"`
	WhatsAPIKey  string `env:"WHATS_API_KEY"`
	WhatsTimeout int    `env:"WHATS_TIMEOUT_SECONDS" envDefault:"45"`

	// Webhook 的共享令牌，网关回调时携带
	WebhookToken string `env:"WEBHOOK_TOKEN"`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"nps"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// 调度配置
	ImmediateScanSeconds  int `env:"IMMEDIATE_SCAN_SECONDS" envDefault:"60"`
	ScheduledScanSeconds  int `env:"SCHEDULED_SCAN_SECONDS" envDefault:"300"`
	ReconcileScanSeconds  int `env:"RECONCILE_SCAN_SECONDS" envDefault:"900"`
	OrderLookbackMinutes  int `env:"ORDER_LOOKBACK_MINUTES" envDefault:"30"`
	NumberCacheTTLMinutes int `env:"NUMBER_CACHE_TTL_MINUTES" envDefault:"720"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪 / 指标配置
	OTLPEndpoint string `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"false"`
}

func init() {

	if err := godotenv.Load(); err != nil {

		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}

	validateConfig()
}

func validateConfig() {
	// development 下放过缺失项，方便本地和测试跑起来
	if Cfg.BackendBaseURL == "" {
		if Cfg.IsDevelopment() {
			log.Printf("WARN: BACKEND_BASE_URL is not set")
		} else {
			log.Fatal("BACKEND_BASE_URL is required")
		}
	}

	if Cfg.BackendEmail == "" || Cfg.BackendPassword == "" {
		if Cfg.IsDevelopment() {
			log.Printf("WARN: BACKEND_EMAIL / BACKEND_PASSWORD are not set")
		} else {
			log.Fatal("BACKEND_EMAIL and BACKEND_PASSWORD are required for backend authentication")
		}
	}

	if Cfg.WhatsBaseURL == "" {
		log.Printf("WARN: WHATS_BASE_URL is not set, message sending will not work")
	}

	if Cfg.WebhookToken == "" {
		log.Printf("WARN: WEBHOOK_TOKEN is not set, the inbound webhook will reject all events")
	}
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
