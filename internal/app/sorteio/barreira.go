package sorteio

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrBarreiraRompida = errors.New("sorteio: barreira rompida")

// Barreira é um ponto de encontro de uso único para n participantes: ninguém
// passa até que o n-ésimo chegue, e a chegada dele libera todos de uma vez.
// Se algum participante desiste (contexto cancelado ou timeout) a barreira é
// rompida e todos os que estão esperando recebem ErrBarreiraRompida.
type Barreira struct {
	n int

	mu       sync.Mutex
	chegadas int
	aberta   chan struct{}
	causa    error
}

func NovaBarreira(n int) *Barreira {
	if n < 1 {
		panic(fmt.Sprintf("sorteio: barreira precisa de ao menos 1 participante, recebeu %d", n))
	}
	return &Barreira{n: n, aberta: make(chan struct{})}
}

// Aguardar bloqueia até a barreira abrir. Depois de aberta, chamadas extras
// retornam imediatamente com o mesmo resultado.
func (b *Barreira) Aguardar(ctx context.Context) error {
	b.mu.Lock()
	select {
	case <-b.aberta:
		causa := b.causa
		b.mu.Unlock()
		return causa
	default:
	}

	b.chegadas++
	if b.chegadas == b.n {
		close(b.aberta)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	select {
	case <-b.aberta:
	case <-ctx.Done():
		b.Romper(ctx.Err())
	}
	return b.resultado()
}

// Romper libera todos os participantes com erro. Não faz nada se a barreira já abriu.
func (b *Barreira) Romper(causa error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.aberta:
		return
	default:
	}

	if causa == nil {
		b.causa = ErrBarreiraRompida
	} else {
		b.causa = fmt.Errorf("%w: %w", ErrBarreiraRompida, causa)
	}
	close(b.aberta)
}

func (b *Barreira) Chegadas() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chegadas
}

func (b *Barreira) Rompida() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.causa != nil
}

func (b *Barreira) resultado() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.causa
}
