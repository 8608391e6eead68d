package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_QuandoRedisDisponivel_DeveConectar(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), Opcoes{Addr: mr.Addr(), PoolSize: 4})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 4, client.Options().PoolSize)
	assert.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
}

func TestNewClient_QuandoPingFalha_DeveRetornarErro(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client, err := NewClient(context.Background(), Opcoes{Addr: addr})

	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestNewClient_QuandoEnderecoVazio_DeveRetornarErro(t *testing.T) {
	_, err := NewClient(context.Background(), Opcoes{})

	assert.Error(t, err)
}
