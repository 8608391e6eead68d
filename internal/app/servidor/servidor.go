// Pacote servidor aceita as conexões das agências e controla o ciclo de vida
// das sessões: uma goroutine por conexão e desligamento que fecha tudo.
package servidor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/marcelojr/loteria-agencias/internal/app/sessao"
	"github.com/marcelojr/loteria-agencias/internal/app/sorteio"
	"github.com/marcelojr/loteria-agencias/internal/platform/ids"
	"github.com/marcelojr/loteria-agencias/internal/platform/logger"
)

var ErrDesligamento = errors.New("servidor: desligamento solicitado")

type Servidor struct {
	endereco    string
	ingestor    sessao.Ingestor
	coordenador *sorteio.Coordenador
	despachante *sorteio.Despachante
	ids         *ids.Generator

	mu       sync.Mutex
	cancelar context.CancelCauseFunc
	falha    error
	fechando bool
	conexoes map[net.Conn]struct{}
	listener net.Listener
	pronto   chan struct{}

	sessoes sync.WaitGroup
}

func New(endereco string, ingestor sessao.Ingestor, coordenador *sorteio.Coordenador, idsGen *ids.Generator) *Servidor {
	if idsGen == nil {
		idsGen = ids.DefaultGenerator()
	}
	return &Servidor{
		endereco:    endereco,
		ingestor:    ingestor,
		coordenador: coordenador,
		despachante: sorteio.NewDespachante(coordenador),
		ids:         idsGen,
		conexoes:    make(map[net.Conn]struct{}),
		pronto:      make(chan struct{}),
	}
}

// Pronto fecha quando o listener está aceitando conexões.
func (s *Servidor) Pronto() <-chan struct{} {
	return s.pronto
}

// Endereco só é válido depois de Pronto.
func (s *Servidor) Endereco() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run bloqueia até ctx ser cancelado ou Falhar ser chamado. Ao sair, nenhuma
// sessão continua rodando. Retorna o erro fatal que derrubou o servidor, se houver.
func (s *Servidor) Run(ctx context.Context) error {
	ctx, cancelar := context.WithCancelCause(ctx)
	defer cancelar(nil)

	ln, err := net.Listen("tcp", s.endereco)
	if err != nil {
		return fmt.Errorf("servidor: listen %s: %w", s.endereco, err)
	}

	s.mu.Lock()
	s.cancelar = cancelar
	s.listener = ln
	s.mu.Unlock()
	close(s.pronto)

	logger.Info("servidor aceitando agencias",
		"endereco", ln.Addr().String(),
		"agencias_esperadas", s.coordenador.Esperadas(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.aceitar(gctx, ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		causa := context.Cause(gctx)
		if causa == nil || errors.Is(causa, context.Canceled) {
			causa = ErrDesligamento
		}
		s.encerrar(ln, causa)
		return nil
	})

	err = g.Wait()
	s.sessoes.Wait()

	s.mu.Lock()
	falha := s.falha
	s.mu.Unlock()
	if falha != nil {
		return falha
	}
	if err != nil {
		return err
	}
	logger.Info("servidor encerrado")
	return nil
}

// Falhar derruba o servidor inteiro. Usado quando a persistência das apostas quebra.
func (s *Servidor) Falhar(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.falha == nil {
		s.falha = err
	}
	if s.cancelar != nil {
		s.cancelar(err)
	}
}

func (s *Servidor) aceitar(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("servidor: accept: %w", err)
		}
		if !s.rastrear(conn) {
			conn.Close()
			continue
		}

		logger.Debug("conexao aceita", "remoto", conn.RemoteAddr().String())
		s.sessoes.Add(1)
		go func() {
			defer s.sessoes.Done()
			defer s.esquecer(conn)
			_ = sessao.New(conn, s.ingestor, s.coordenador, s.despachante, s.Falhar, s.ids).Executar(ctx)
		}()
	}
}

func (s *Servidor) rastrear(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fechando {
		return false
	}
	s.conexoes[conn] = struct{}{}
	return true
}

func (s *Servidor) esquecer(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conexoes, conn)
}

// encerrar fecha o listener e todas as conexões vivas e rompe a barreira,
// liberando as sessões que estavam esperando o sorteio.
func (s *Servidor) encerrar(ln net.Listener, causa error) {
	s.mu.Lock()
	s.fechando = true
	abertas := make([]net.Conn, 0, len(s.conexoes))
	for conn := range s.conexoes {
		abertas = append(abertas, conn)
	}
	s.mu.Unlock()

	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Warn("erro ao fechar listener", "err", err)
	}
	for _, conn := range abertas {
		logger.Warn("fechando conexao de agencia no desligamento", "remoto", conn.RemoteAddr().String())
		conn.Close()
	}
	s.coordenador.RomperBarreira(causa)
	logger.Info("desligamento em andamento", "conexoes_fechadas", len(abertas), "causa", causa.Error())
}
