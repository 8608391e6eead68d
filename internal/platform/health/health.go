package health

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Check devolve erro quando a dependência não está pronta.
type Check struct {
	Nome  string
	Testa func(ctx context.Context) error
}

type Checker struct {
	checks []Check
}

// NewChecker monta os checks de banco e Redis; dependências nulas são ignoradas.
func NewChecker(db *sql.DB, redisClient *redis.Client, extras ...Check) *Checker {
	c := &Checker{}
	if db != nil {
		c.checks = append(c.checks, Check{Nome: "database", Testa: db.PingContext})
	}
	if redisClient != nil {
		c.checks = append(c.checks, Check{Nome: "redis", Testa: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	c.checks = append(c.checks, extras...)
	return c
}

func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		// A ordem dos checks é a de registro; o primeiro que falhar define a resposta.
		for _, check := range c.checks {
			if err := check.Testa(ctx); err != nil {
				http.Error(w, check.Nome+" unavailable", http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
