package sorteio

import (
	"context"
	"strconv"
	"strings"

	"github.com/marcelojr/loteria-agencias/internal/domain"
)

// NumeroVencedor ganha quem apostou exatamente o número sorteado. Números que
// não são inteiros nunca ganham.
func NumeroVencedor(numero int) domain.Predicado {
	return func(a domain.Aposta) bool {
		n, err := strconv.Atoi(strings.TrimSpace(a.Numero))
		return err == nil && n == numero
	}
}

// PublicadorNoop descarta o resultado; usado quando o Redis está desabilitado.
type PublicadorNoop struct{}

func (PublicadorNoop) Publicar(context.Context, domain.ResultadoSorteio) error { return nil }

var _ domain.PublicadorResultados = PublicadorNoop{}
