package sorteio

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelojr/loteria-agencias/internal/domain"
)

func pipeConn(t *testing.T) net.Conn {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a
}

func TestRegistro_Registrar_QuandoAgenciaReconecta_DeveSubstituirSoAEntradaDela(t *testing.T) {
	r := NovoRegistro()
	antiga, nova, outra := pipeConn(t), pipeConn(t), pipeConn(t)

	assert.False(t, r.Registrar(1, antiga))
	assert.False(t, r.Registrar(2, outra))
	assert.True(t, r.Registrar(1, nova))

	conn, ok := r.Conexao(1)
	require.True(t, ok)
	assert.Same(t, nova, conn)
	conn, ok = r.Conexao(2)
	require.True(t, ok)
	assert.Same(t, outra, conn)
}

func TestRegistro_Desregistrar_QuandoConexaoJaFoiSubstituida_NaoDeveRemover(t *testing.T) {
	r := NovoRegistro()
	antiga, nova := pipeConn(t), pipeConn(t)
	r.Registrar(1, antiga)
	r.Registrar(1, nova)

	assert.False(t, r.Desregistrar(1, antiga))
	conn, ok := r.Conexao(1)
	require.True(t, ok)
	assert.Same(t, nova, conn)

	assert.True(t, r.Desregistrar(1, nova))
	_, ok = r.Conexao(1)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegistro_Agencias_DeveRetornarOrdenado(t *testing.T) {
	r := NovoRegistro()
	for _, id := range []domain.AgenciaID{5, 1, 3} {
		r.Registrar(id, pipeConn(t))
	}

	assert.Equal(t, []domain.AgenciaID{1, 3, 5}, r.Agencias())
}
