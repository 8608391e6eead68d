package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_QuandoAmbienteVazio_DeveUsarDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":12345", cfg.ServerAddress)
	assert.Equal(t, 5, cfg.AgenciasEsperadas)
	assert.Equal(t, 7574, cfg.NumeroVencedor)
	assert.Equal(t, time.Duration(0), cfg.SorteioTimeout)
	assert.Equal(t, StorageDriverSQLite, cfg.StorageDriver)
	assert.False(t, cfg.RedisHabilitado())
	assert.True(t, cfg.AutoMigrate)
}

func TestLoad_QuandoVariaveisDefinidas_DeveSobrescrever(t *testing.T) {
	t.Setenv("AGENCIAS_ESPERADAS", "3")
	t.Setenv("SORTEIO_TIMEOUT", "45s")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("DB_AUTO_MIGRATE", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.AgenciasEsperadas)
	assert.Equal(t, 45*time.Second, cfg.SorteioTimeout)
	assert.True(t, cfg.RedisHabilitado())
	assert.Equal(t, StorageDriverPostgres, cfg.StorageDriver)
	assert.False(t, cfg.AutoMigrate)
}

func TestLoad_QuandoInteiroInvalido_DeveRetornarErro(t *testing.T) {
	t.Setenv("REDIS_DB", "um")

	_, err := Load()

	assert.ErrorContains(t, err, "REDIS_DB")
}

func TestLoad_QuandoAgenciasZero_DeveRetornarErro(t *testing.T) {
	t.Setenv("AGENCIAS_ESPERADAS", "0")

	_, err := Load()

	assert.ErrorContains(t, err, "AGENCIAS_ESPERADAS")
}

func TestLoad_QuandoDriverDesconhecido_DeveRetornarErro(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "mongo")

	_, err := Load()

	assert.ErrorContains(t, err, "STORAGE_DRIVER")
}

func TestLoad_QuandoArquivoYAML_DeveLerValoresEAmbienteTerPrecedencia(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agencias_esperadas: 7\nserver_address: \":5000\"\n"), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_ADDRESS", ":6000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.AgenciasEsperadas)
	assert.Equal(t, ":6000", cfg.ServerAddress)
}

func TestPostgresDSN_DeveMontarURL(t *testing.T) {
	cfg := Config{
		PostgresUser:     "u",
		PostgresPassword: "p",
		PostgresHost:     "db",
		PostgresPort:     "5432",
		PostgresDB:       "loteria",
		PostgresSSLMode:  "disable",
	}

	assert.Equal(t, "postgres://u:p@db:5432/loteria?sslmode=disable", cfg.PostgresDSN())
}
