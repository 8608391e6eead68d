package health

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bancoApostas abre um SQLite em memória com a tabela de apostas; fechado simula queda do banco.
func bancoApostas(t *testing.T, fechado bool) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE apostas (id TEXT PRIMARY KEY, agencia INTEGER)")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	if fechado {
		db.Close()
	}
	return db
}

func redisContadores(t *testing.T, fechado bool) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	if fechado {
		client.Close()
	}
	return client
}

func consultar(c *Checker) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c.ReadyHandler().ServeHTTP(w, httptest.NewRequest("GET", "/readyz", nil))
	return w
}

func TestReadyHandler(t *testing.T) {
	casos := []struct {
		nome         string
		dbFechado    *bool
		redisFechado *bool
		status       int
		corpo        string
	}{
		{nome: "banco e redis no ar", dbFechado: ptr(false), redisFechado: ptr(false), status: http.StatusOK, corpo: "ok"},
		{nome: "sem redis configurado", dbFechado: ptr(false), status: http.StatusOK, corpo: "ok"},
		{nome: "sem banco configurado", redisFechado: ptr(false), status: http.StatusOK, corpo: "ok"},
		{nome: "nenhuma dependencia", status: http.StatusOK, corpo: "ok"},
		{nome: "banco fora", dbFechado: ptr(true), redisFechado: ptr(false), status: http.StatusServiceUnavailable, corpo: "database unavailable\n"},
		{nome: "redis fora", dbFechado: ptr(false), redisFechado: ptr(true), status: http.StatusServiceUnavailable, corpo: "redis unavailable\n"},
		{nome: "ambos fora reporta o banco", dbFechado: ptr(true), redisFechado: ptr(true), status: http.StatusServiceUnavailable, corpo: "database unavailable\n"},
	}

	for _, c := range casos {
		t.Run(c.nome, func(t *testing.T) {
			var (
				db          *sql.DB
				redisClient *redis.Client
			)
			if c.dbFechado != nil {
				db = bancoApostas(t, *c.dbFechado)
			}
			if c.redisFechado != nil {
				redisClient = redisContadores(t, *c.redisFechado)
			}

			w := consultar(NewChecker(db, redisClient))

			assert.Equal(t, c.status, w.Code)
			assert.Equal(t, c.corpo, w.Body.String())
		})
	}
}

func TestReadyHandler_QuandoCheckExtraFalha_DeveRetornar503ComNome(t *testing.T) {
	checker := NewChecker(bancoApostas(t, false), nil, Check{
		Nome:  "listener",
		Testa: func(context.Context) error { return errors.New("fechado") },
	})

	w := consultar(checker)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "listener unavailable\n", w.Body.String())
}

func TestReadyHandler_QuandoCheckExtraPassa_DeveConsiderarPronto(t *testing.T) {
	chamado := false
	checker := NewChecker(nil, nil, Check{
		Nome: "listener",
		Testa: func(context.Context) error {
			chamado = true
			return nil
		},
	})

	w := consultar(checker)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, chamado)
}

func ptr(b bool) *bool { return &b }
