package sorteio

import (
	"context"
	"fmt"
	"net"

	"github.com/marcelojr/loteria-agencias/internal/domain"
	"github.com/marcelojr/loteria-agencias/internal/protocolo"
)

// Despachante entrega a cada agência apenas a sua fatia de ganhadores.
type Despachante struct {
	coordenador *Coordenador
}

func NewDespachante(c *Coordenador) *Despachante {
	return &Despachante{coordenador: c}
}

// Enviar escreve a lista de ganhadores da agência em conn, que precisa ser a
// conexão registrada dela. Retorna a quantidade enviada.
func (d *Despachante) Enviar(ctx context.Context, agencia domain.AgenciaID, conn net.Conn) (int, error) {
	docs, err := d.coordenador.Ganhadores(agencia)
	if err != nil {
		return 0, fmt.Errorf("sorteio: ganhadores da agencia %d: %w", agencia, err)
	}
	if !d.coordenador.ConexaoAtual(agencia, conn) {
		return 0, fmt.Errorf("sorteio: conexao da agencia %d: %w", agencia, ErrConexaoSubstituida)
	}

	if prazo, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(prazo); err != nil {
			return 0, fmt.Errorf("sorteio: prazo de escrita: %w", err)
		}
	}
	if err := protocolo.EscreverGanhadores(conn, docs); err != nil {
		return 0, fmt.Errorf("sorteio: enviar ganhadores para agencia %d: %w", agencia, err)
	}
	return len(docs), nil
}
