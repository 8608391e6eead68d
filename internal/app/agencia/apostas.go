package agencia

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/marcelojr/loteria-agencias/internal/domain"
	"github.com/marcelojr/loteria-agencias/internal/protocolo"
)

const (
	// MaxBytesLote é o teto de 8 KiB por lote, já descontado o uint32 com o tamanho do lote.
	MaxBytesLote = 8*1024 - 4

	camposCSV = 5
)

// ArquivoPadrao é o nome do CSV de apostas de cada agência.
func ArquivoPadrao(id domain.AgenciaID) string {
	return fmt.Sprintf("agency-%d.csv", id)
}

func CarregarApostas(caminho string, agencia domain.AgenciaID) ([]domain.Aposta, error) {
	f, err := os.Open(caminho)
	if err != nil {
		return nil, fmt.Errorf("agencia: abrir apostas: %w", err)
	}
	defer f.Close()
	return LerApostas(f, agencia)
}

// LerApostas lê linhas nome,sobrenome,documento,nascimento,numero. Linhas com
// menos campos são ignoradas.
func LerApostas(r io.Reader, agencia domain.AgenciaID) ([]domain.Aposta, error) {
	leitor := csv.NewReader(r)
	leitor.FieldsPerRecord = -1

	var apostas []domain.Aposta
	for linha := 1; ; linha++ {
		registro, err := leitor.Read()
		if errors.Is(err, io.EOF) {
			return apostas, nil
		}
		if err != nil {
			return nil, fmt.Errorf("agencia: ler csv linha %d: %w", linha, err)
		}
		if len(registro) < camposCSV {
			continue
		}
		apostas = append(apostas, domain.Aposta{
			Agencia:    agencia,
			Nome:       registro[0],
			Sobrenome:  registro[1],
			Documento:  registro[2],
			Nascimento: registro[3],
			Numero:     registro[4],
		})
	}
}

// DividirEmLotes fecha um lote ao atingir maxApostas ou quando a próxima
// aposta passaria de MaxBytesLote. Nunca gera lote vazio.
func DividirEmLotes(apostas []domain.Aposta, maxApostas int) []domain.Lote {
	if maxApostas <= 0 {
		maxApostas = 1
	}
	var (
		lotes []domain.Lote
		atual domain.Lote
		bytes int
	)
	for _, a := range apostas {
		tamanho := protocolo.TamanhoAposta(a)
		if len(atual) > 0 && (bytes+tamanho > MaxBytesLote || len(atual) >= maxApostas) {
			lotes = append(lotes, atual)
			atual, bytes = nil, 0
		}
		atual = append(atual, a)
		bytes += tamanho
	}
	if len(atual) > 0 {
		lotes = append(lotes, atual)
	}
	return lotes
}
