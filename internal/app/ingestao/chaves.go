package ingestao

import (
	"fmt"

	"github.com/marcelojr/loteria-agencias/internal/domain"
)

const ChaveApostasTotal = "apostas:total"

func ChaveApostasAgencia(id domain.AgenciaID) string {
	return fmt.Sprintf("agencia:%d:apostas", id)
}
