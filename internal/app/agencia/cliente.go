// Pacote agencia implementa o lado cliente: lê as apostas da agência, envia
// em lotes, sinaliza o fim e recebe os ganhadores do sorteio.
package agencia

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/marcelojr/loteria-agencias/internal/domain"
	"github.com/marcelojr/loteria-agencias/internal/platform/logger"
	"github.com/marcelojr/loteria-agencias/internal/protocolo"
)

var ErrRecusado = errors.New("agencia: servidor respondeu ERROR")

type Config struct {
	ID               domain.AgenciaID
	EnderecoServidor string
	BatchAmount      int
	TimeoutConexao   time.Duration
}

type Resultado struct {
	Apostas    int
	Lotes      int
	Ganhadores []string
}

type Cliente struct {
	cfg Config
}

func New(cfg Config) *Cliente {
	if cfg.BatchAmount <= 0 {
		cfg.BatchAmount = protocolo.MaxApostasPorLote
	}
	return &Cliente{cfg: cfg}
}

// Enviar percorre o protocolo inteiro numa conexão nova. Bloqueia até o
// servidor sortear, o que só acontece quando todas as agências terminaram.
// Cancelar ctx fecha a conexão.
func (c *Cliente) Enviar(ctx context.Context, apostas []domain.Aposta) (Resultado, error) {
	for i, a := range apostas {
		if a.Agencia != c.cfg.ID {
			return Resultado{}, fmt.Errorf("agencia: aposta %d pertence a agencia %d", i, a.Agencia)
		}
	}
	lotes := DividirEmLotes(apostas, c.cfg.BatchAmount)
	res := Resultado{Apostas: len(apostas), Lotes: len(lotes)}

	dialer := net.Dialer{Timeout: c.cfg.TimeoutConexao}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.EnderecoServidor)
	if err != nil {
		return res, fmt.Errorf("agencia: conectar em %s: %w", c.cfg.EnderecoServidor, err)
	}
	defer conn.Close()
	parar := context.AfterFunc(ctx, func() { conn.Close() })
	defer parar()

	log := logger.L().With("agencia", c.cfg.ID)
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	if err := protocolo.EscreverUint32(w, uint32(c.cfg.ID)); err != nil {
		return res, c.erroConexao(ctx, "registrar", err)
	}
	if err := protocolo.EscreverCabecalhoLotes(w, len(lotes)); err != nil {
		return res, c.erroConexao(ctx, "enviar cabecalho", err)
	}
	for i, lote := range lotes {
		if err := protocolo.EscreverLote(w, lote); err != nil {
			return res, c.erroConexao(ctx, fmt.Sprintf("enviar lote %d", i+1), err)
		}
	}
	if err := w.Flush(); err != nil {
		return res, c.erroConexao(ctx, "enviar lotes", err)
	}

	if err := esperarToken(r, protocolo.TokenOK); err != nil {
		return res, c.erroConexao(ctx, "confirmacao dos lotes", err)
	}
	log.Info("apostas enviadas", "apostas", len(apostas), "lotes", len(lotes))

	if err := protocolo.EscreverToken(conn, protocolo.TokenFim); err != nil {
		return res, c.erroConexao(ctx, "sinalizar fim", err)
	}
	log.Info("fim do envio sinalizado; aguardando sorteio")

	// Se a barreira romper o servidor manda ERROR no lugar da lista.
	if cabecalho, err := r.Peek(4); err == nil && string(cabecalho) == protocolo.TokenErro[:4] {
		return res, ErrRecusado
	}
	ganhadores, err := protocolo.LerGanhadores(r)
	if err != nil {
		return res, c.erroConexao(ctx, "receber ganhadores", err)
	}
	res.Ganhadores = ganhadores
	log.Info("ganhadores recebidos", "ganhadores", len(ganhadores))
	return res, nil
}

func esperarToken(r *bufio.Reader, esperado string) error {
	token, err := protocolo.LerToken(r)
	if err != nil {
		return err
	}
	switch token {
	case esperado:
		return nil
	case protocolo.TokenErro:
		return ErrRecusado
	default:
		return fmt.Errorf("%w: esperava %q, recebeu %q", protocolo.ErrFrameMalformado, esperado, token)
	}
}

// erroConexao prefere o erro do contexto quando foi o cancelamento que fechou a conexão.
func (c *Cliente) erroConexao(ctx context.Context, etapa string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("agencia: %s: %w", etapa, ctx.Err())
	}
	return fmt.Errorf("agencia: %s: %w", etapa, err)
}
