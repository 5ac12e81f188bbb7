package config

import "time"

type Config struct {
	Environment    Environment
	Log            Log
	HTTP           HTTPServer
	BaseURL        string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"mysql"` // mysql, postgres, sqlite
	DatabaseURL    string `env:"DATABASE_URL"`

	Auth     Auth     `envPrefix:"AUTH_"`
	Redis    Redis    `envPrefix:"REDIS_"`
	Kafka    Kafka    `envPrefix:"KAFKA_"`
	Telegram Telegram `envPrefix:"TELEGRAM_"`
	Checkout Checkout `envPrefix:"CHECKOUT_"`
	Midtrans Midtrans `envPrefix:"MIDTRANS_"`
	Paypal   Paypal   `envPrefix:"PAYPAL_"`
}

// Auth holds the session token secret. It is loaded once at startup and
// handed to the middleware that verifies tokens; it never lives in source.
type Auth struct {
	JWTSecret string `env:"JWT_SECRET,required"`
}

type Redis struct {
	Addr     string        `env:"ADDR"`
	DedupTTL time.Duration `env:"DEDUP_TTL" envDefault:"48h"`
}

type Kafka struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"storefront.orders"`
}

type Telegram struct {
	BaseApiURL string `env:"BASE_API_URL" envDefault:"https://api.telegram.org"`
	BotToken   string `env:"BOT_TOKEN"`
	ChatID     string `env:"CHAT_ID"`
}

type Checkout struct {
	Currency            string        `env:"CURRENCY" envDefault:"IDR"`
	PaymentExpiry       time.Duration `env:"PAYMENT_EXPIRY" envDefault:"24h"`
	GatewayTimeout      time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"15s"`
	ExpirySweepInterval time.Duration `env:"EXPIRY_SWEEP_INTERVAL" envDefault:"5m"`
}

// Midtrans endpoints; which one is used depends on the payment method mode.
type Midtrans struct {
	SandboxURL    string `env:"SANDBOX_URL" envDefault:"https://app.sandbox.midtrans.com"`
	ProductionURL string `env:"PRODUCTION_URL" envDefault:"https://app.midtrans.com"`
}

type Paypal struct {
	SandboxApiURL    string `env:"SANDBOX_API_URL" envDefault:"https://api-m.sandbox.paypal.com"`
	ProductionApiURL string `env:"PRODUCTION_API_URL" envDefault:"https://api-m.paypal.com"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host             string  `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port             string  `env:"HTTP_PORT" envDefault:"8080"`
	WebhookRateLimit float64 `env:"HTTP_WEBHOOK_RATE_LIMIT" envDefault:"50"`
}
