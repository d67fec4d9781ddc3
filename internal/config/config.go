package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type App struct {
	Env             string        `mapstructure:"env"`
	LogLevel        string        `mapstructure:"log_level"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (a App) Addr() string { return fmt.Sprintf(":%d", a.Port) }

func (a App) Development() bool { return a.Env == "development" }

type Mongo struct {
	URI                string        `mapstructure:"uri"`
	DB                 string        `mapstructure:"db"`
	MessagesCollection string        `mapstructure:"messages_collection"`
	UsersCollection    string        `mapstructure:"users_collection"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
	RetryMaxElapsed    time.Duration `mapstructure:"retry_max_elapsed"`
}

type Redis struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Prefix      string        `mapstructure:"prefix"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl"`
}

type Kafka struct {
	Brokers             []string      `mapstructure:"brokers"`
	TopicMessageCreated string        `mapstructure:"topic_message_created"`
	QueueSize           int           `mapstructure:"queue_size"`
	WriteTimeout        time.Duration `mapstructure:"write_timeout"`
	BreakerMaxFailures  uint32        `mapstructure:"breaker_max_failures"`
	BreakerTimeout      time.Duration `mapstructure:"breaker_timeout"`
}

type JWT struct {
	Alg           string `mapstructure:"alg"`
	PublicKeyPath string `mapstructure:"public_key_path"`
	HSSecret      string `mapstructure:"hs_secret"`
}

type WS struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteDeadline  time.Duration `mapstructure:"write_deadline"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type HTTP struct {
	RateLimitPerMin int `mapstructure:"rate_limit_per_min"`
	RateLimitBurst  int `mapstructure:"rate_limit_burst"`
}

type Relay struct {
	// RestFanout makes POST /messages also deliver message:new to live connections.
	RestFanout bool `mapstructure:"rest_fanout"`
}

type Storage struct {
	Driver    string        `mapstructure:"driver"`
	SeedUsers []domain.User `mapstructure:"seed_users"`
}

type Config struct {
	App     App     `mapstructure:"app"`
	Mongo   Mongo   `mapstructure:"mongo"`
	Redis   Redis   `mapstructure:"redis"`
	Kafka   Kafka   `mapstructure:"kafka"`
	JWT     JWT     `mapstructure:"jwt"`
	WS      WS      `mapstructure:"ws"`
	HTTP    HTTP    `mapstructure:"http"`
	Relay   Relay   `mapstructure:"relay"`
	Storage Storage `mapstructure:"storage"`
}

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "production")
	v.SetDefault("app.log_level", "")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.shutdown_timeout", 10*time.Second)

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.db", "")
	v.SetDefault("mongo.messages_collection", "messages")
	v.SetDefault("mongo.users_collection", "users")
	v.SetDefault("mongo.connect_timeout", 10*time.Second)
	v.SetDefault("mongo.retry_max_elapsed", 30*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "relay")
	v.SetDefault("redis.presence_ttl", 24*time.Hour)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_message_created", "message.created")
	v.SetDefault("kafka.queue_size", 1024)
	v.SetDefault("kafka.write_timeout", 5*time.Second)
	v.SetDefault("kafka.breaker_max_failures", 5)
	v.SetDefault("kafka.breaker_timeout", 30*time.Second)

	v.SetDefault("jwt.alg", "HS256")
	v.SetDefault("jwt.public_key_path", "")
	v.SetDefault("jwt.hs_secret", "")

	v.SetDefault("ws.ping_interval", 25*time.Second)
	v.SetDefault("ws.pong_wait", 60*time.Second)
	v.SetDefault("ws.write_deadline", 10*time.Second)
	v.SetDefault("ws.max_message_size", 65536)
	v.SetDefault("ws.send_buffer", 256)

	v.SetDefault("http.rate_limit_per_min", 0)
	v.SetDefault("http.rate_limit_burst", 20)

	v.SetDefault("relay.rest_fanout", false)

	v.SetDefault("storage.driver", DriverMongo)
}

// Load reads .env, then an optional config.yaml (or the file at path), then
// APP_* environment overrides such as APP_MONGO_URI.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.App.Port <= 0 {
		return errors.New("app.port missing or invalid")
	}

	switch cfg.Storage.Driver {
	case DriverMongo:
		if cfg.Mongo.URI == "" {
			return errors.New("mongo.uri missing")
		}
		if cfg.Mongo.DB == "" {
			return errors.New("mongo.db missing")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid storage.driver %q (use mongo or memory)", cfg.Storage.Driver)
	}

	cfg.JWT.Alg = strings.ToUpper(cfg.JWT.Alg)
	switch cfg.JWT.Alg {
	case "RS256":
		if cfg.JWT.PublicKeyPath == "" {
			return errors.New("jwt.public_key_path required for RS256")
		}
	case "HS256":
		if cfg.JWT.HSSecret == "" {
			return errors.New("jwt.hs_secret required for HS256")
		}
	default:
		return errors.New("invalid jwt.alg (use RS256 or HS256)")
	}

	if cfg.WS.PingInterval <= 0 || cfg.WS.PongWait <= 0 || cfg.WS.WriteDeadline <= 0 {
		return errors.New("ws durations must be positive")
	}
	if cfg.WS.PingInterval >= cfg.WS.PongWait {
		return errors.New("ws.ping_interval must be shorter than ws.pong_wait")
	}
	if cfg.WS.SendBuffer <= 0 {
		return errors.New("ws.send_buffer must be positive")
	}
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.TopicMessageCreated == "" {
		return errors.New("kafka.topic_message_created missing")
	}
	return nil
}
