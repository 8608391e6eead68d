package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystemClock_Agora_DeveEstarEmUTC(t *testing.T) {
	assert.Equal(t, time.UTC, NewSystemClock().Agora().Location())
}

func TestFixedClock_Avancar_DeveSomarDuracao(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewFixedClock(base)

	c.Avancar(90 * time.Second)

	assert.Equal(t, base.Add(90*time.Second), c.Agora())
}
