package domain

import (
	"errors"
	"time"
)

type (
	AgenciaID uint32
	ApostaID  string
	SorteioID string
)

var (
	ErrNotFound        = errors.New("registro nao encontrado")
	// ErrPersistencia marca falhas do armazenamento de apostas; o servidor trata como fatal.
	ErrPersistencia    = errors.New("falha de persistencia")
	// ErrSorteioPendente: nenhum ganhador é visível antes do sorteio rodar.
	ErrSorteioPendente = errors.New("sorteio ainda nao executado")
)

// Aposta é imutável depois de decodificada do socket.
type Aposta struct {
	ID         ApostaID  `gorm:"column:id;type:char(26);primaryKey"`
	Agencia    AgenciaID `gorm:"column:agencia;not null;index:idx_apostas_agencia"`
	Nome       string    `gorm:"column:nome;type:text;not null"`
	Sobrenome  string    `gorm:"column:sobrenome;type:text;not null"`
	Documento  string    `gorm:"column:documento;type:text;not null"`
	Nascimento string    `gorm:"column:nascimento;type:text"`
	Numero     string    `gorm:"column:numero;type:text;not null"`
	RecebidaEm time.Time `gorm:"column:recebida_em;autoCreateTime"`
}

// Lote é o agrupamento de apostas enviado pela agência numa única unidade de ingestão.
type Lote []Aposta

type ResultadoSorteio struct {
	ID               SorteioID
	ExecutadoEm      time.Time
	ApostasAvaliadas int
	Ganhadores       map[AgenciaID][]string
}

// EstadoSorteio é a visão somente leitura do coordenador usada pela API de status.
type EstadoSorteio struct {
	AgenciasEsperadas   int         `json:"agencias_esperadas"`
	AgenciasNotificadas []AgenciaID `json:"agencias_notificadas"`
	AgenciasConectadas  []AgenciaID `json:"agencias_conectadas"`
	Executado           bool        `json:"executado"`
	SorteioID           SorteioID   `json:"sorteio_id,omitempty"`
	ExecutadoEm         *time.Time  `json:"executado_em,omitempty"`
}

func (Aposta) TableName() string { return "apostas" }
