// Pacote config centraliza o carregamento das variáveis de ambiente usadas pelos binários.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"
)

// Config agrega todos os parâmetros necessários para o servidor e para a agência.
type Config struct {
	ServerAddress       string
	ServerListenBacklog int

	AgenciasEsperadas int
	NumeroVencedor    int
	SorteioTimeout    time.Duration

	MetricsAddress string

	StorageDriver string
	SQLitePath    string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ContadorKeyPrefix   string
	ResultadosKeyPrefix string

	AutoMigrate bool
	LogLevel    string
}

// Load lê primeiro o arquivo apontado por CONFIG_FILE (se houver) e depois o ambiente, que tem precedência.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: ler %s: %w", path, err)
		}
	}

	cfg := Config{
		ServerAddress:       v.GetString("SERVER_ADDRESS"),
		ServerListenBacklog: v.GetInt("SERVER_LISTEN_BACKLOG"),
		SorteioTimeout:      v.GetDuration("SORTEIO_TIMEOUT"),
		MetricsAddress:      v.GetString("METRICS_ADDRESS"),
		StorageDriver:       v.GetString("STORAGE_DRIVER"),
		SQLitePath:          v.GetString("SQLITE_PATH"),
		PostgresHost:        v.GetString("POSTGRES_HOST"),
		PostgresPort:        v.GetString("POSTGRES_PORT"),
		PostgresUser:        v.GetString("POSTGRES_USER"),
		PostgresPassword:    v.GetString("POSTGRES_PASSWORD"),
		PostgresDB:          v.GetString("POSTGRES_DB"),
		PostgresSSLMode:     v.GetString("POSTGRES_SSLMODE"),
		RedisAddr:           v.GetString("REDIS_ADDR"),
		RedisPassword:       v.GetString("REDIS_PASSWORD"),
		ContadorKeyPrefix:   v.GetString("REDIS_COUNTER_PREFIX"),
		ResultadosKeyPrefix: v.GetString("REDIS_RESULTADOS_PREFIX"),
		AutoMigrate:         v.GetBool("DB_AUTO_MIGRATE"),
		LogLevel:            v.GetString("LOG_LEVEL"),
	}

	var err error
	if cfg.RedisDB, err = getInt(v, "REDIS_DB"); err != nil {
		return Config{}, err
	}
	if cfg.AgenciasEsperadas, err = getInt(v, "AGENCIAS_ESPERADAS"); err != nil {
		return Config{}, err
	}
	if cfg.NumeroVencedor, err = getInt(v, "NUMERO_VENCEDOR"); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.AgenciasEsperadas < 1 {
		return errors.New("config: AGENCIAS_ESPERADAS deve ser >= 1")
	}
	if c.SorteioTimeout < 0 {
		return errors.New("config: SORTEIO_TIMEOUT nao pode ser negativo")
	}
	switch c.StorageDriver {
	case StorageDriverPostgres, StorageDriverSQLite:
	default:
		return fmt.Errorf("config: STORAGE_DRIVER desconhecido %q", c.StorageDriver)
	}
	return nil
}

func (c Config) PostgresDSN() string {
	// Mantemos o formato DSN compatível com GORM e ferramentas de migração.
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
		c.PostgresSSLMode,
	)
}

func (c Config) RedisHabilitado() bool {
	return c.RedisAddr != ""
}

func setDefaults(v *viper.Viper) {
	// Defaults priorizam execução local; variáveis permitem sobrescrever em Docker.
	v.SetDefault("SERVER_ADDRESS", ":12345")
	v.SetDefault("SERVER_LISTEN_BACKLOG", 5)
	v.SetDefault("AGENCIAS_ESPERADAS", "5")
	v.SetDefault("NUMERO_VENCEDOR", "7574")
	v.SetDefault("SORTEIO_TIMEOUT", "0s")
	v.SetDefault("METRICS_ADDRESS", ":9090")
	v.SetDefault("STORAGE_DRIVER", StorageDriverSQLite)
	v.SetDefault("SQLITE_PATH", "apostas.db")
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("POSTGRES_USER", "loteria")
	v.SetDefault("POSTGRES_PASSWORD", "loteria")
	v.SetDefault("POSTGRES_DB", "loteria")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", "0")
	v.SetDefault("REDIS_COUNTER_PREFIX", "contador")
	v.SetDefault("REDIS_RESULTADOS_PREFIX", "sorteio")
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CONFIG_FILE", "")
}

func getInt(v *viper.Viper, key string) (int, error) {
	raw := v.GetString(key)
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s invalido: %w", key, err)
	}
	return i, nil
}
