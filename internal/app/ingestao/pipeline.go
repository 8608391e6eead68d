// Pacote ingestao persiste os lotes recebidos das agências, um lote por vez no processo inteiro.
package ingestao

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marcelojr/loteria-agencias/internal/domain"
	"github.com/marcelojr/loteria-agencias/internal/platform/ids"
	"github.com/marcelojr/loteria-agencias/internal/platform/logger"
	"github.com/marcelojr/loteria-agencias/internal/platform/metrics"
)

// Pipeline grava lotes no repositório e mantém contadores/métricas.
type Pipeline struct {
	// mu serializa Armazenar entre todas as sessões.
	mu       sync.Mutex
	repo     domain.ApostaRepository
	contador domain.Contador
	clock    domain.Clock
	ids      *ids.Generator
}

func NewPipeline(repo domain.ApostaRepository, contador domain.Contador, clock domain.Clock, idsGen *ids.Generator) *Pipeline {
	if idsGen == nil {
		idsGen = ids.DefaultGenerator()
	}
	return &Pipeline{
		repo:     repo,
		contador: contador,
		clock:    clock,
		ids:      idsGen,
	}
}

// Processar persiste o lote como unidade: nenhuma aposta do lote fica gravada se a escrita falhar.
func (p *Pipeline) Processar(ctx context.Context, lote domain.Lote) error {
	if len(lote) == 0 {
		return nil
	}
	start := time.Now()

	porAgencia, err := p.armazenar(ctx, lote)
	if err != nil {
		return err
	}

	metrics.AddApostasIngeridas(len(lote))
	metrics.ObserveIngestaoDuration(time.Since(start).Seconds())

	if p.contador == nil {
		return nil
	}

	deltas := make(map[string]int64, len(porAgencia)+1)
	for agencia, n := range porAgencia {
		deltas[ChaveApostasAgencia(agencia)] = n
	}
	deltas[ChaveApostasTotal] = int64(len(lote))

	// O contador é só para consulta; as apostas já estão no banco, então não derrubamos a sessão.
	if err := p.contador.IncrementarVarios(ctx, deltas); err != nil {
		logger.Warn("falha ao atualizar contadores de apostas", "err", err)
	}
	return nil
}

func (p *Pipeline) armazenar(ctx context.Context, lote domain.Lote) (map[domain.AgenciaID]int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// IDs gerados dentro do lock mantêm a ordem dos ULIDs igual à ordem de escrita.
	agora := p.clock.Agora()
	apostas := make([]domain.Aposta, len(lote))
	porAgencia := make(map[domain.AgenciaID]int64)
	for i, a := range lote {
		a.ID = domain.ApostaID(p.ids.NewAt(agora))
		a.RecebidaEm = agora
		apostas[i] = a
		porAgencia[a.Agencia]++
	}

	if err := p.repo.Armazenar(ctx, apostas); err != nil {
		return nil, fmt.Errorf("ingestao: %w: %w", domain.ErrPersistencia, err)
	}
	return porAgencia, nil
}
