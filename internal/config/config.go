// Package config предоставялет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек сервиса идентификации
type Config struct {
	Env                     string `yaml:"env" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
	RabbitMQAddress         string `yaml:"rabbitmq_address" env:"RABBITMQ_ADDRESS"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Bot                     `yaml:"bot"`
	Auth                    `yaml:"auth"`
	Internal                `yaml:"internal"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8834"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// JWTToken структура для работы с jwt-токенами: секрет и два времени жизни,
// короткое для access-токена и длинное (в днях) для refresh-токена
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	AccessTTL    time.Duration `yaml:"access_ttl" env-default:"15m"`
	RefreshDays  int           `yaml:"refresh_expire_days" env-default:"30"`
}

// Bot структура с данными телеграм-бота, через виджет которого проходит вход
type Bot struct {
	BotToken string `yaml:"bot_token" env:"BOT_TOKEN"`
	BotName  string `yaml:"bot_name"`
}

// Auth структура с настройками refresh-куки и редиректов после входа
type Auth struct {
	PublicURL          string   `yaml:"public_url"`
	CookieDomain       string   `yaml:"cookie_domain"`
	DefaultReturnTo    string   `yaml:"default_return_to"`
	AllowedReturnHosts []string `yaml:"allowed_return_hosts"`
}

// Internal структура с секретом внутренней границы синхронизации.
// Пустое значение означает, что граница не сконфигурирована и все
// внутренние вызовы должны отклоняться с 503
type Internal struct {
	UserSyncToken string `yaml:"user_sync_token" env:"USER_SYNC_TOKEN"`
}

// SecureCookies возвращает true, если refresh-кука должна выставляться
// с флагом secure: публичный адрес либо не задан, либо отдается по https
func (a Auth) SecureCookies() bool {
	if a.PublicURL == "" {
		return true
	}
	return strings.HasPrefix(a.PublicURL, "https")
}

// MustLoad функция для загрузки конфига, путь берется из переменной окружения CONFIG_PATH
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
	return &cfg
}
