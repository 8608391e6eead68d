package servidor

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelojr/loteria-agencias/internal/app/ingestao"
	"github.com/marcelojr/loteria-agencias/internal/app/sorteio"
	"github.com/marcelojr/loteria-agencias/internal/domain"
	"github.com/marcelojr/loteria-agencias/internal/platform/clock"
	"github.com/marcelojr/loteria-agencias/internal/protocolo"
)

type memRepo struct {
	mu      sync.Mutex
	apostas []domain.Aposta
	falha   error
}

func (m *memRepo) Armazenar(_ context.Context, apostas []domain.Aposta) error {
	if m.falha != nil {
		return m.falha
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apostas = append(m.apostas, apostas...)
	return nil
}

func (m *memRepo) Listar(context.Context) ([]domain.Aposta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Aposta(nil), m.apostas...), nil
}

func (m *memRepo) Total(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.apostas)), nil
}

type execucao struct {
	servidor    *Servidor
	coordenador *sorteio.Coordenador
	cancelar    context.CancelFunc
	fim         chan error
	encerrado   chan struct{}
}

func iniciarServidor(t *testing.T, esperadas int, repo *memRepo) *execucao {
	t.Helper()
	coord := sorteio.NewCoordenador(esperadas, repo, sorteio.NumeroVencedor(7574), nil, clock.NewSystemClock(), nil, 0)
	pipeline := ingestao.NewPipeline(repo, nil, clock.NewSystemClock(), nil)
	srv := New("127.0.0.1:0", pipeline, coord, nil)

	ctx, cancel := context.WithCancel(context.Background())
	e := &execucao{
		servidor:    srv,
		coordenador: coord,
		cancelar:    cancel,
		fim:         make(chan error, 1),
		encerrado:   make(chan struct{}),
	}
	go func() {
		e.fim <- srv.Run(ctx)
		close(e.encerrado)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-e.encerrado:
		case <-time.After(3 * time.Second):
		}
	})

	select {
	case <-srv.Pronto():
	case err := <-e.fim:
		t.Fatalf("servidor nao subiu: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("servidor nao ficou pronto")
	}
	return e
}

func (e *execucao) aguardarFim(t *testing.T) error {
	t.Helper()
	select {
	case err := <-e.fim:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("Run nao retornou")
		return nil
	}
}

type respostaAgencia struct {
	confirmacao string
	ganhadores  []string
	err         error
}

// agencia faz o papel do cliente: registra, envia os lotes, manda END e lê os ganhadores.
func agencia(addr net.Addr, id domain.AgenciaID, lotes ...domain.Lote) respostaAgencia {
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		return respostaAgencia{err: err}
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(conn)

	if err := protocolo.EscreverUint32(conn, uint32(id)); err != nil {
		return respostaAgencia{err: err}
	}
	if err := protocolo.EscreverCabecalhoLotes(conn, len(lotes)); err != nil {
		return respostaAgencia{err: err}
	}
	for _, l := range lotes {
		if err := protocolo.EscreverLote(conn, l); err != nil {
			return respostaAgencia{err: err}
		}
	}
	token, err := protocolo.LerToken(r)
	if err != nil || token != protocolo.TokenOK {
		return respostaAgencia{confirmacao: token, err: err}
	}
	if err := protocolo.EscreverToken(conn, protocolo.TokenFim); err != nil {
		return respostaAgencia{confirmacao: token, err: err}
	}
	ganhadores, err := protocolo.LerGanhadores(r)
	return respostaAgencia{confirmacao: token, ganhadores: ganhadores, err: err}
}

func aposta(agencia domain.AgenciaID, documento, numero string) domain.Aposta {
	return domain.Aposta{Agencia: agencia, Nome: "Maria", Sobrenome: "Silva", Documento: documento, Nascimento: "1985-10-10", Numero: numero}
}

func TestServidor_QuandoTresAgenciasEnviam_CadaUmaRecebeSoSeusGanhadores(t *testing.T) {
	// Arrange
	repo := &memRepo{}
	e := iniciarServidor(t, 3, repo)
	lotes := map[domain.AgenciaID][]domain.Lote{
		1: {{aposta(1, "10", "7574"), aposta(1, "11", "1")}, {aposta(1, "12", "7574")}},
		2: {{aposta(2, "20", "2")}},
		3: {{aposta(3, "30", "7574")}, {aposta(3, "31", "3")}, {aposta(3, "32", "4")}},
	}

	// Act
	var wg sync.WaitGroup
	var mu sync.Mutex
	respostas := make(map[domain.AgenciaID]respostaAgencia)
	for id, l := range lotes {
		wg.Add(1)
		go func(id domain.AgenciaID, l []domain.Lote) {
			defer wg.Done()
			resp := agencia(e.servidor.Endereco(), id, l...)
			mu.Lock()
			respostas[id] = resp
			mu.Unlock()
		}(id, l)
	}
	wg.Wait()

	// Assert
	for id, resp := range respostas {
		require.NoError(t, resp.err, "agencia %d", id)
		assert.Equal(t, protocolo.TokenOK, resp.confirmacao)
	}
	assert.Equal(t, []string{"10", "12"}, respostas[1].ganhadores)
	assert.Empty(t, respostas[2].ganhadores)
	assert.Equal(t, []string{"30"}, respostas[3].ganhadores)
	assert.Equal(t, 1, e.coordenador.Execucoes())
	assert.Len(t, repo.apostas, 7)
}

func TestServidor_QuandoUmaAgenciaEnviaRegistroMalformado_AsOutrasConcluem(t *testing.T) {
	// Arrange
	repo := &memRepo{}
	e := iniciarServidor(t, 2, repo)
	addr := e.servidor.Endereco()

	// Act
	ruim := agencia(addr, 3, domain.Lote{aposta(3, "30", "7574"), aposta(9, "90", "7574")})

	var wg sync.WaitGroup
	boas := make([]respostaAgencia, 2)
	for i, id := range []domain.AgenciaID{1, 2} {
		wg.Add(1)
		go func(i int, id domain.AgenciaID) {
			defer wg.Done()
			boas[i] = agencia(addr, id, domain.Lote{aposta(id, "doc", "7574")})
		}(i, id)
	}
	wg.Wait()

	// Assert
	require.NoError(t, ruim.err)
	assert.Equal(t, protocolo.TokenErro, ruim.confirmacao)
	for i, resp := range boas {
		require.NoError(t, resp.err, "agencia %d", i+1)
		assert.Equal(t, []string{"doc"}, resp.ganhadores)
	}
	for _, a := range repo.apostas {
		assert.NotEqual(t, domain.AgenciaID(3), a.Agencia, "lote rejeitado nao pode ser persistido")
	}
}

func TestServidor_QuandoAgenciaRejeitadaReenvia_NaoDeveDuplicarApostas(t *testing.T) {
	// Arrange
	repo := &memRepo{}
	e := iniciarServidor(t, 3, repo)
	addr := e.servidor.Endereco()

	ruim := agencia(addr, 3,
		domain.Lote{aposta(3, "30", "7574")},
		domain.Lote{aposta(3, "31", "1"), aposta(8, "80", "7574")},
	)
	require.NoError(t, ruim.err)
	require.Equal(t, protocolo.TokenErro, ruim.confirmacao)

	// Act
	lotes := map[domain.AgenciaID]domain.Lote{
		1: {aposta(1, "10", "1")},
		2: {aposta(2, "20", "2")},
		3: {aposta(3, "30", "7574")},
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	respostas := make(map[domain.AgenciaID]respostaAgencia)
	for id, l := range lotes {
		wg.Add(1)
		go func(id domain.AgenciaID, l domain.Lote) {
			defer wg.Done()
			resp := agencia(addr, id, l)
			mu.Lock()
			respostas[id] = resp
			mu.Unlock()
		}(id, l)
	}
	wg.Wait()

	// Assert
	for id, resp := range respostas {
		require.NoError(t, resp.err, "agencia %d", id)
	}
	assert.Equal(t, []string{"30"}, respostas[3].ganhadores)
	assert.Len(t, repo.apostas, 3)
}

func TestServidor_QuandoAgenciaReconectaDepoisDeSinalizar_ConexaoOriginalRecebeGanhadores(t *testing.T) {
	// Arrange
	e := iniciarServidor(t, 2, &memRepo{})
	addr := e.servidor.Endereco()
	original := make(chan respostaAgencia, 1)
	go func() { original <- agencia(addr, 1, domain.Lote{aposta(1, "10", "7574")}) }()
	require.Eventually(t, func() bool {
		return len(e.coordenador.Estado().AgenciasNotificadas) == 1
	}, 3*time.Second, 10*time.Millisecond)

	// Act
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))
	require.NoError(t, protocolo.EscreverUint32(conn, 1))
	tokenSegunda, err := protocolo.LerToken(bufio.NewReader(conn))
	require.NoError(t, err)

	outra := agencia(addr, 2)

	// Assert
	assert.Equal(t, protocolo.TokenErro, tokenSegunda)
	require.NoError(t, outra.err)
	assert.Empty(t, outra.ganhadores)
	select {
	case resp := <-original:
		require.NoError(t, resp.err)
		assert.Equal(t, []string{"10"}, resp.ganhadores)
	case <-time.After(3 * time.Second):
		t.Fatal("conexao original nao recebeu ganhadores")
	}
}

func TestServidor_QuandoPrefixoPassaDosBytesEnviados_DeveResponderErro(t *testing.T) {
	// Arrange
	e := iniciarServidor(t, 1, &memRepo{})
	conn, err := net.Dial("tcp", e.servidor.Endereco().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))

	// Act
	for _, v := range []uint32{1, 1, 1, 1, 10, 1, 1, 1, 1} {
		require.NoError(t, protocolo.EscreverUint32(conn, v))
	}
	_, err = conn.Write([]byte("1nome"))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())
	token, err := protocolo.LerToken(bufio.NewReader(conn))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, protocolo.TokenErro, token)
	assert.False(t, e.coordenador.Estado().Executado)
}

func TestServidor_QuandoContextoCancelado_DeveLiberarSessoesPresasNaBarreira(t *testing.T) {
	// Arrange
	e := iniciarServidor(t, 2, &memRepo{})
	resposta := make(chan respostaAgencia, 1)
	go func() { resposta <- agencia(e.servidor.Endereco(), 1) }()

	require.Eventually(t, func() bool {
		return len(e.coordenador.Estado().AgenciasNotificadas) == 1
	}, 3*time.Second, 10*time.Millisecond)

	// Act
	e.cancelar()

	// Assert
	assert.NoError(t, e.aguardarFim(t))
	select {
	case resp := <-resposta:
		assert.Error(t, resp.err, "agencia nao deve receber ganhadores parciais")
		assert.Nil(t, resp.ganhadores)
	case <-time.After(3 * time.Second):
		t.Fatal("agencia continuou bloqueada")
	}
	assert.False(t, e.coordenador.Estado().Executado)
}

func TestServidor_QuandoPersistenciaFalha_DeveEncerrarComErroFatal(t *testing.T) {
	// Arrange
	causa := errors.New("disco cheio")
	e := iniciarServidor(t, 2, &memRepo{falha: causa})

	// Act
	resp := agencia(e.servidor.Endereco(), 1, domain.Lote{aposta(1, "1", "1")})
	err := e.aguardarFim(t)

	// Assert
	assert.Equal(t, protocolo.TokenErro, resp.confirmacao)
	assert.ErrorIs(t, err, domain.ErrPersistencia)
	assert.ErrorIs(t, err, causa)
}

func TestServidor_Run_QuandoEnderecoInvalido_DeveRetornarErro(t *testing.T) {
	coord := sorteio.NewCoordenador(1, &memRepo{}, sorteio.NumeroVencedor(1), nil, clock.NewSystemClock(), nil, 0)
	srv := New("endereco-invalido", nil, coord, nil)

	err := srv.Run(context.Background())

	assert.Error(t, err)
	assert.Nil(t, srv.Endereco())
}
