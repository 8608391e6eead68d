package sorteio

import (
	"net"
	"slices"
	"sync"

	"github.com/marcelojr/loteria-agencias/internal/domain"
)

// Registro mapeia cada agência para a conexão viva dela.
type Registro struct {
	mu       sync.RWMutex
	conexoes map[domain.AgenciaID]net.Conn
}

func NovoRegistro() *Registro {
	return &Registro{conexoes: make(map[domain.AgenciaID]net.Conn)}
}

// Registrar associa a conexão à agência; um re-registro substitui a conexão anterior.
func (r *Registro) Registrar(agencia domain.AgenciaID, conn net.Conn) (substituida bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, substituida = r.conexoes[agencia]
	r.conexoes[agencia] = conn
	return substituida
}

// Desregistrar só remove a entrada se ela ainda apontar para conn, para que a
// sessão antiga de uma agência reconectada não apague a conexão nova.
func (r *Registro) Desregistrar(agencia domain.AgenciaID, conn net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	atual, ok := r.conexoes[agencia]
	if !ok || atual != conn {
		return false
	}
	delete(r.conexoes, agencia)
	return true
}

func (r *Registro) Conexao(agencia domain.AgenciaID) (net.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conexoes[agencia]
	return conn, ok
}

func (r *Registro) Agencias() []domain.AgenciaID {
	r.mu.RLock()
	ids := make([]domain.AgenciaID, 0, len(r.conexoes))
	for id := range r.conexoes {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

func (r *Registro) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conexoes)
}
