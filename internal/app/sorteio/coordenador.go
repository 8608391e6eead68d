// Pacote sorteio coordena o fim do envio das agências: registro das conexões,
// barreira de conclusão, execução única do sorteio e entrega dos ganhadores.
package sorteio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/marcelojr/loteria-agencias/internal/domain"
	"github.com/marcelojr/loteria-agencias/internal/platform/ids"
	"github.com/marcelojr/loteria-agencias/internal/platform/logger"
	"github.com/marcelojr/loteria-agencias/internal/platform/metrics"
)

var (
	ErrAgenciaJaNotificada = errors.New("sorteio: agencia ja sinalizou conclusao")
	ErrAgenciasExcedidas   = errors.New("sorteio: mais agencias do que o esperado")
	ErrAgenciaDesconhecida = fmt.Errorf("sorteio: agencia desconhecida: %w", domain.ErrNotFound)
	// ErrConexaoSubstituida: outra conexão da mesma agência assumiu o registro.
	ErrConexaoSubstituida = errors.New("sorteio: conexao da agencia foi substituida")
)

// Coordenador é o único dono do estado compartilhado entre as sessões.
type Coordenador struct {
	esperadas  int
	registro   *Registro
	barreira   *Barreira
	repo       domain.ApostaRepository
	predicado  domain.Predicado
	publicador domain.PublicadorResultados
	clock      domain.Clock
	ids        *ids.Generator
	timeout    time.Duration

	mu          sync.Mutex
	notificadas map[domain.AgenciaID]struct{}
	executado   bool
	resultado   domain.ResultadoSorteio
	execucoes   int
}

func NewCoordenador(
	esperadas int,
	repo domain.ApostaRepository,
	predicado domain.Predicado,
	publicador domain.PublicadorResultados,
	clock domain.Clock,
	idsGen *ids.Generator,
	timeout time.Duration,
) *Coordenador {
	if idsGen == nil {
		idsGen = ids.DefaultGenerator()
	}
	if publicador == nil {
		publicador = PublicadorNoop{}
	}
	return &Coordenador{
		esperadas:   esperadas,
		registro:    NovoRegistro(),
		barreira:    NovaBarreira(esperadas),
		repo:        repo,
		predicado:   predicado,
		publicador:  publicador,
		clock:       clock,
		ids:         idsGen,
		timeout:     timeout,
		notificadas: make(map[domain.AgenciaID]struct{}, esperadas),
	}
}

func (c *Coordenador) Esperadas() int {
	return c.esperadas
}

// Registrar associa a conexão à agência. Retorna true quando substituiu uma
// conexão anterior. Uma agência que já sinalizou conclusão mantém a conexão
// que está esperando o sorteio.
func (c *Coordenador) Registrar(agencia domain.AgenciaID, conn net.Conn) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.notificadas[agencia]; ok {
		return false, fmt.Errorf("%w: agencia %d nao pode reconectar", ErrAgenciaJaNotificada, agencia)
	}
	substituida := c.registro.Registrar(agencia, conn)
	metrics.SetAgenciasConectadas(c.registro.Len())
	return substituida, nil
}

func (c *Coordenador) Desregistrar(agencia domain.AgenciaID, conn net.Conn) {
	if c.registro.Desregistrar(agencia, conn) {
		metrics.SetAgenciasConectadas(c.registro.Len())
	}
}

func (c *Coordenador) Conexao(agencia domain.AgenciaID) (net.Conn, bool) {
	return c.registro.Conexao(agencia)
}

// ConexaoAtual diz se conn ainda é a conexão registrada da agência.
func (c *Coordenador) ConexaoAtual(agencia domain.AgenciaID, conn net.Conn) bool {
	atual, ok := c.registro.Conexao(agencia)
	return ok && atual == conn
}

// SinalizarConclusao registra que a agência terminou de enviar apostas pela
// conexão conn e devolve quantas agências já sinalizaram. conn precisa ser a
// conexão registrada da agência.
func (c *Coordenador) SinalizarConclusao(agencia domain.AgenciaID, conn net.Conn) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ConexaoAtual(agencia, conn) {
		return len(c.notificadas), fmt.Errorf("%w: agencia %d", ErrConexaoSubstituida, agencia)
	}
	if _, ok := c.notificadas[agencia]; ok {
		return len(c.notificadas), fmt.Errorf("%w: agencia %d", ErrAgenciaJaNotificada, agencia)
	}
	if len(c.notificadas) >= c.esperadas {
		return len(c.notificadas), fmt.Errorf("%w: agencia %d alem das %d esperadas", ErrAgenciasExcedidas, agencia, c.esperadas)
	}
	c.notificadas[agencia] = struct{}{}
	metrics.SetAgenciasNotificadas(len(c.notificadas))
	return len(c.notificadas), nil
}

// AguardarSorteio bloqueia até todas as agências esperadas chegarem à barreira.
func (c *Coordenador) AguardarSorteio(ctx context.Context) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.barreira.Aguardar(ctx); err != nil {
		return fmt.Errorf("sorteio: aguardar agencias: %w", err)
	}
	return nil
}

// RomperBarreira libera quem está esperando com erro; usado no desligamento.
func (c *Coordenador) RomperBarreira(causa error) {
	c.barreira.Romper(causa)
}

// ExecutarSorteio roda o sorteio uma única vez, e só quando todas as agências
// esperadas sinalizaram. Chamadas seguintes devolvem o mesmo resultado.
func (c *Coordenador) ExecutarSorteio(ctx context.Context) (domain.ResultadoSorteio, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.executado {
		return c.resultado, nil
	}
	if len(c.notificadas) != c.esperadas {
		return domain.ResultadoSorteio{}, fmt.Errorf("%w: %d de %d agencias sinalizaram", domain.ErrSorteioPendente, len(c.notificadas), c.esperadas)
	}

	start := time.Now()
	apostas, err := c.repo.Listar(ctx)
	if err != nil {
		return domain.ResultadoSorteio{}, fmt.Errorf("sorteio: listar apostas: %w: %w", domain.ErrPersistencia, err)
	}

	ganhadores := make(map[domain.AgenciaID][]string, c.esperadas)
	for agencia := range c.notificadas {
		ganhadores[agencia] = []string{}
	}
	for _, agencia := range c.registro.Agencias() {
		ganhadores[agencia] = []string{}
	}
	total := 0
	for _, a := range apostas {
		if !c.predicado(a) {
			continue
		}
		ganhadores[a.Agencia] = append(ganhadores[a.Agencia], a.Documento)
		total++
	}

	agora := c.clock.Agora()
	resultado := domain.ResultadoSorteio{
		ID:               domain.SorteioID(c.ids.NewAt(agora)),
		ExecutadoEm:      agora,
		ApostasAvaliadas: len(apostas),
		Ganhadores:       ganhadores,
	}

	if err := c.publicador.Publicar(ctx, resultado); err != nil {
		logger.Warn("falha ao publicar resultado do sorteio", "sorteio", resultado.ID, "err", err)
	}

	c.resultado = resultado
	c.executado = true
	c.execucoes++

	metrics.ObserveSorteio(time.Since(start).Seconds(), total)
	logger.Info("sorteio executado",
		"sorteio", resultado.ID,
		"apostas", len(apostas),
		"ganhadores", total,
	)
	return resultado, nil
}

// Ganhadores devolve uma cópia dos documentos ganhadores da agência.
func (c *Coordenador) Ganhadores(agencia domain.AgenciaID) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.executado {
		return nil, domain.ErrSorteioPendente
	}
	docs, ok := c.resultado.Ganhadores[agencia]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrAgenciaDesconhecida, agencia)
	}
	return slices.Clone(docs), nil
}

func (c *Coordenador) Estado() domain.EstadoSorteio {
	c.mu.Lock()
	defer c.mu.Unlock()

	notificadas := make([]domain.AgenciaID, 0, len(c.notificadas))
	for agencia := range c.notificadas {
		notificadas = append(notificadas, agencia)
	}
	slices.Sort(notificadas)

	estado := domain.EstadoSorteio{
		AgenciasEsperadas:   c.esperadas,
		AgenciasNotificadas: notificadas,
		AgenciasConectadas:  c.registro.Agencias(),
		Executado:           c.executado,
	}
	if c.executado {
		executadoEm := c.resultado.ExecutadoEm
		estado.SorteioID = c.resultado.ID
		estado.ExecutadoEm = &executadoEm
	}
	return estado
}

// Execucoes conta quantas vezes o sorteio foi de fato calculado.
func (c *Coordenador) Execucoes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.execucoes
}

var _ domain.SorteioService = (*Coordenador)(nil)
