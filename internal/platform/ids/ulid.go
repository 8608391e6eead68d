// Pacote ids gera ULIDs monotônicos para sessões, sorteios e apostas persistidas.
package ids

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator é seguro para uso concorrente. IDs gerados no mesmo milissegundo
// continuam crescentes.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

func NewGenerator() *Generator {
	return NewGeneratorFromSeed(time.Now().UnixNano())
}

// NewGeneratorFromSeed torna a sequência reproduzível em testes.
func NewGeneratorFromSeed(seed int64) *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)}
}

func (g *Generator) New() string {
	return g.NewAt(time.Now().UTC())
}

// NewAt usa o instante do clock do domínio como timestamp do ULID.
func (g *Generator) NewAt(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

var (
	padraoOnce sync.Once
	padrao     *Generator
)

// DefaultGenerator é usado pelos construtores que recebem gerador nil.
func DefaultGenerator() *Generator {
	padraoOnce.Do(func() {
		padrao = NewGenerator()
	})
	return padrao
}
