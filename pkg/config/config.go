package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Log       LogConfig       `mapstructure:"log"`
	Consul    ConsulConfig    `mapstructure:"consul"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Mysql     MysqlConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Elastic   ElasticConfig   `mapstructure:"elastic"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Media     MediaConfig     `mapstructure:"media"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServiceConfig struct {
	Name     string `mapstructure:"name"`
	Port     int    `mapstructure:"port"`
	GrpcPort int    `mapstructure:"grpc_port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type ConsulConfig struct {
	Address string `mapstructure:"address"`
	Enabled bool   `mapstructure:"enabled"`
}

// DatabaseConfig selects the gorm driver. "mysql" uses MysqlConfig,
// "sqlite" opens Path.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	Debug  bool   `mapstructure:"debug"`
}

type MysqlConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DbName   string `mapstructure:"dbname"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	Db       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
	Issuer string        `mapstructure:"issuer"`
}

type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type ElasticConfig struct {
	URL   string `mapstructure:"url"`
	Index string `mapstructure:"index"`
}

type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

type MediaConfig struct {
	Root      string `mapstructure:"root"`
	URLPrefix string `mapstructure:"url_prefix"`
}

// RateLimitConfig holds sentinel QPS thresholds. Zero disables a rule.
type RateLimitConfig struct {
	CheckoutQPS float64 `mapstructure:"checkout_qps"`
	PaymentQPS  float64 `mapstructure:"payment_qps"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "storefront")
	v.SetDefault("service.port", 8080)
	v.SetDefault("service.grpc_port", 9090)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("consul.address", "127.0.0.1:8500")
	v.SetDefault("consul.enabled", false)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.path", "storefront.db")
	v.SetDefault("database.debug", false)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.dbname", "db_storefront")

	v.SetDefault("redis.address", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.secret", "change-me")
	v.SetDefault("jwt.ttl", 24*time.Hour)
	v.SetDefault("jwt.issuer", "go-storefront")

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "storefront.events")

	v.SetDefault("elastic.url", "")
	v.SetDefault("elastic.index", "products")

	v.SetDefault("tracing.endpoint", "")

	v.SetDefault("media.root", "media")
	v.SetDefault("media.url_prefix", "/media/")

	v.SetDefault("ratelimit.checkout_qps", 20)
	v.SetDefault("ratelimit.payment_qps", 20)
}

// LoadConfig 读取配置文件
//
// A missing config.yaml is not an error: defaults plus environment
// overrides (MYSQL_HOST, REDIS_ADDRESS, CONSUL_ADDRESS, SERVICE_PORT, ...)
// are enough to boot. Values from a .env file in the working directory are
// exported before the environment is read.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env")
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		log.Warn().Str("path", path).Msg("config.yaml not found, using defaults and environment")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	log.Info().Str("path", path).Str("service", config.Service.Name).Msg("config loaded")
	return &config, nil
}
