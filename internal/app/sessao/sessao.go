// Pacote sessao conduz o diálogo com uma agência numa única conexão TCP:
// registro, ingestão dos lotes, sinal de fim, espera pelo sorteio e resposta.
package sessao

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/marcelojr/loteria-agencias/internal/app/sorteio"
	"github.com/marcelojr/loteria-agencias/internal/domain"
	"github.com/marcelojr/loteria-agencias/internal/platform/ids"
	"github.com/marcelojr/loteria-agencias/internal/platform/logger"
	"github.com/marcelojr/loteria-agencias/internal/platform/metrics"
	"github.com/marcelojr/loteria-agencias/internal/protocolo"
)

const prazoRespostaErro = time.Second

var (
	ErrAgenciaDivergente = errors.New("sessao: aposta de outra agencia")
	ErrTokenInesperado   = errors.New("sessao: token inesperado")
)

// Resultados usados no rótulo da métrica de sessões.
const (
	ResultadoSucesso          = "sucesso"
	ResultadoMalformado       = "malformado"
	ResultadoConexaoEncerrada = "conexao_encerrada"
	ResultadoPersistencia     = "persistencia"
	ResultadoBarreiraRompida  = "barreira_rompida"
	ResultadoRecusada         = "recusada"
	ResultadoErro             = "erro"
)

type Ingestor interface {
	Processar(ctx context.Context, lote domain.Lote) error
}

// Sessao existe do accept até o fechamento da conexão.
type Sessao struct {
	id          string
	conn        net.Conn
	r           *bufio.Reader
	ingestor    Ingestor
	coordenador *sorteio.Coordenador
	despachante *sorteio.Despachante
	falhar      func(error)
	log         *slog.Logger

	agencia    domain.AgenciaID
	registrada bool
	apostas    int
	concluida  bool
}

// New prepara a sessão. falhar é chamado quando a persistência quebra e o
// processo inteiro precisa parar; pode ser nil.
func New(
	conn net.Conn,
	ingestor Ingestor,
	coordenador *sorteio.Coordenador,
	despachante *sorteio.Despachante,
	falhar func(error),
	idsGen *ids.Generator,
) *Sessao {
	if idsGen == nil {
		idsGen = ids.DefaultGenerator()
	}
	if falhar == nil {
		falhar = func(error) {}
	}
	id := idsGen.New()
	return &Sessao{
		id:          id,
		conn:        conn,
		r:           bufio.NewReader(conn),
		ingestor:    ingestor,
		coordenador: coordenador,
		despachante: despachante,
		falhar:      falhar,
		log:         logger.L().With("sessao", id, "remoto", conn.RemoteAddr().String()),
	}
}

func (s *Sessao) ID() string { return s.id }

func (s *Sessao) Agencia() (domain.AgenciaID, bool) { return s.agencia, s.registrada }

func (s *Sessao) Apostas() int { return s.apostas }

// Concluida indica se a agência já mandou END e foi aceita pelo coordenador.
func (s *Sessao) Concluida() bool { return s.concluida }

// Executar roda a sessão até o fim e sempre fecha a conexão.
func (s *Sessao) Executar(ctx context.Context) error {
	defer s.conn.Close()

	err := s.executar(ctx)
	resultado := classificar(err)
	metrics.ObserveSessao(resultado)

	switch resultado {
	case ResultadoSucesso:
		s.log.Info("sessao concluida", "apostas", s.apostas)
	case ResultadoConexaoEncerrada:
		s.log.Info("agencia encerrou a conexao", "apostas", s.apostas, "err", err)
	case ResultadoPersistencia:
		s.log.Error("falha de persistencia na sessao", "err", err)
	default:
		s.log.Warn("sessao abortada", "resultado", resultado, "err", err)
	}
	return err
}

func (s *Sessao) executar(ctx context.Context) error {
	if err := s.registrar(); err != nil {
		s.responderErro(err)
		return err
	}
	defer s.coordenador.Desregistrar(s.agencia, s.conn)

	if err := s.ingerir(ctx); err != nil {
		s.responderErro(err)
		if errors.Is(err, domain.ErrPersistencia) {
			s.falhar(err)
		}
		return err
	}

	if err := s.aguardarFim(); err != nil {
		s.responderErro(err)
		return err
	}

	if err := s.coordenador.AguardarSorteio(ctx); err != nil {
		s.responderErro(err)
		return err
	}

	if _, err := s.coordenador.ExecutarSorteio(ctx); err != nil {
		s.responderErro(err)
		if errors.Is(err, domain.ErrPersistencia) {
			s.falhar(err)
		}
		return err
	}

	n, err := s.despachante.Enviar(ctx, s.agencia, s.conn)
	if err != nil {
		s.responderErro(err)
		return err
	}
	s.log.Info("ganhadores enviados", "ganhadores", n)
	return nil
}

func (s *Sessao) registrar() error {
	id, err := protocolo.LerUint32(s.r)
	if err != nil {
		return fmt.Errorf("sessao: registrar agencia: %w", err)
	}
	s.agencia = domain.AgenciaID(id)
	s.log = s.log.With("agencia", s.agencia)

	substituida, err := s.coordenador.Registrar(s.agencia, s.conn)
	if err != nil {
		return fmt.Errorf("sessao: registrar agencia: %w", err)
	}
	s.registrada = true
	if substituida {
		s.log.Warn("agencia reconectou; conexao anterior substituida")
	}
	s.log.Info("agencia registrada")
	return nil
}

// ingerir só entrega as apostas ao ingestor depois que todos os lotes da
// conexão foram lidos e validados; um lote ruim descarta a conexão inteira.
func (s *Sessao) ingerir(ctx context.Context) error {
	lotes, err := protocolo.LerCabecalhoLotes(s.r)
	if err != nil {
		return fmt.Errorf("sessao: cabecalho de lotes: %w", err)
	}

	var pendentes domain.Lote
	for i := uint32(0); i < lotes; i++ {
		lote, err := protocolo.LerLote(s.r)
		if err != nil {
			return fmt.Errorf("sessao: lote %d/%d: %w", i+1, lotes, err)
		}
		for _, a := range lote {
			if a.Agencia != s.agencia {
				return fmt.Errorf("%w: %w: lote %d traz agencia %d", protocolo.ErrFrameMalformado, ErrAgenciaDivergente, i+1, a.Agencia)
			}
		}
		pendentes = append(pendentes, lote...)
		s.log.Debug("lote recebido", "lote", i+1, "apostas", len(lote))
	}

	if err := s.ingestor.Processar(ctx, pendentes); err != nil {
		return err
	}
	s.apostas = len(pendentes)

	if err := protocolo.EscreverToken(s.conn, protocolo.TokenOK); err != nil {
		return fmt.Errorf("sessao: confirmar lotes: %w", err)
	}
	s.log.Info("apostas armazenadas", "lotes", lotes, "apostas", s.apostas)
	return nil
}

func (s *Sessao) aguardarFim() error {
	token, err := protocolo.LerToken(s.r)
	if err != nil {
		return fmt.Errorf("sessao: sinal de fim: %w", err)
	}
	if token != protocolo.TokenFim {
		return fmt.Errorf("%w: %w: %q", protocolo.ErrFrameMalformado, ErrTokenInesperado, token)
	}

	n, err := s.coordenador.SinalizarConclusao(s.agencia, s.conn)
	if err != nil {
		return err
	}
	s.concluida = true
	s.log.Info("agencia concluiu envio", "notificadas", n, "esperadas", s.coordenador.Esperadas())
	return nil
}

// responderErro avisa a agência antes de fechar. Uma agência que só fechou o
// lado de escrita ainda lê a resposta, então EOF na leitura não impede o
// aviso; já uma conexão fechada ou com escrita quebrada não tem a quem avisar.
func (s *Sessao) responderErro(causa error) {
	if escritaImpossivel(causa) {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(prazoRespostaErro))
	if err := protocolo.EscreverToken(s.conn, protocolo.TokenErro); err != nil {
		s.log.Debug("nao foi possivel enviar ERROR", "err", err)
	}
}

func classificar(err error) string {
	switch {
	case err == nil:
		return ResultadoSucesso
	case errors.Is(err, domain.ErrPersistencia):
		return ResultadoPersistencia
	case errors.Is(err, protocolo.ErrFrameMalformado):
		return ResultadoMalformado
	case errors.Is(err, sorteio.ErrBarreiraRompida):
		return ResultadoBarreiraRompida
	case errors.Is(err, sorteio.ErrAgenciaJaNotificada), errors.Is(err, sorteio.ErrAgenciasExcedidas),
		errors.Is(err, sorteio.ErrConexaoSubstituida):
		return ResultadoRecusada
	case conexaoEncerrada(err):
		return ResultadoConexaoEncerrada
	default:
		return ResultadoErro
	}
}

func escritaImpossivel(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}

// conexaoEncerrada reconhece os erros normais de fim de conexão, que não são falha do servidor.
func conexaoEncerrada(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, protocolo.ErrConexaoEncerrada) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
