package domain

import (
	"context"
	"time"
)

type ApostaRepository interface {
	Armazenar(ctx context.Context, apostas []Aposta) error
	Listar(ctx context.Context) ([]Aposta, error)
	Total(ctx context.Context) (int64, error)
}

type Contador interface {
	Incrementar(ctx context.Context, chave string, delta int64) (int64, error)
	IncrementarVarios(ctx context.Context, deltas map[string]int64) error
	Obter(ctx context.Context, chave string) (int64, error)
	ObterTodos(ctx context.Context, chaves []string) (map[string]int64, error)
}

// PublicadorResultados recebe o resultado do sorteio depois que ele foi calculado.
type PublicadorResultados interface {
	Publicar(ctx context.Context, resultado ResultadoSorteio) error
}

// Predicado decide se uma aposta é ganhadora. Deve ser pura.
type Predicado func(Aposta) bool

type Clock interface {
	Agora() time.Time
}

type SorteioService interface {
	Estado() EstadoSorteio
	Ganhadores(agencia AgenciaID) ([]string, error)
}
