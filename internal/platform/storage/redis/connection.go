// Pacote redis guarda contadores de apostas por agência e publica o resultado do sorteio.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const timeoutPing = 5 * time.Second

type Opcoes struct {
	Addr     string
	Password string
	DB       int
	// PoolSize zero usa o padrão do go-redis.
	PoolSize int
}

// NewClient só devolve o client depois de um PING bem-sucedido.
func NewClient(ctx context.Context, o Opcoes) (*redis.Client, error) {
	if o.Addr == "" {
		return nil, fmt.Errorf("redis: endereco vazio")
	}
	client := redis.NewClient(&redis.Options{
		Addr:        o.Addr,
		Password:    o.Password,
		DB:          o.DB,
		PoolSize:    o.PoolSize,
		PoolTimeout: timeoutPing,
	})

	ctx, cancel := context.WithTimeout(ctx, timeoutPing)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", o.Addr, err)
	}
	return client, nil
}
