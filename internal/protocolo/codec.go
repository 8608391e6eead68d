// Pacote protocolo implementa o framing binário trocado entre agências e servidor.
//
// Todos os inteiros são uint32 big-endian. Uma aposta é enviada como seis
// prefixos de tamanho (agência, nome, sobrenome, documento, nascimento,
// número) seguidos dos bytes UTF-8 dos seis campos na mesma ordem. A agência
// também viaja sozinha como uint32 no registro da conexão; dentro da aposta
// ela vai como texto decimal e precisa bater com o valor registrado.
package protocolo

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/marcelojr/loteria-agencias/internal/domain"
)

const (
	tamanhoUint32   = 4
	camposPorAposta = 6

	// MaxTamanhoCampo limita cada campo de texto; um prefixo maior é tratado como frame corrompido.
	MaxTamanhoCampo = 1024
	// MaxApostasPorLote segue o limite de 8 KiB por lote usado pelas agências.
	MaxApostasPorLote = 8192
	MaxLotes          = 1 << 20
	MaxGanhadores     = 1 << 20
)

var (
	// ErrConexaoEncerrada indica que o par fechou a conexão antes de completar o frame.
	ErrConexaoEncerrada = errors.New("protocolo: conexao encerrada no meio do frame")
	ErrFrameMalformado  = errors.New("protocolo: frame malformado")
)

// lerExato só retorna quando n bytes foram lidos ou a conexão acabou; nunca devolve dados truncados.
func lerExato(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %w", ErrConexaoEncerrada, err)
		}
		return nil, err
	}
	return buf, nil
}

func LerUint32(r io.Reader) (uint32, error) {
	buf, err := lerExato(r, tamanhoUint32)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

// LerCabecalhoLotes lê a quantidade de lotes que a agência vai enviar.
func LerCabecalhoLotes(r io.Reader) (uint32, error) {
	n, err := LerUint32(r)
	if err != nil {
		return 0, err
	}
	if n > MaxLotes {
		return 0, fmt.Errorf("%w: %d lotes excede o maximo %d", ErrFrameMalformado, n, MaxLotes)
	}
	return n, nil
}

// LerLote lê o tamanho do lote e em seguida todas as apostas dele. Qualquer
// aposta inválida invalida o lote inteiro.
func LerLote(r io.Reader) (domain.Lote, error) {
	n, err := LerUint32(r)
	if err != nil {
		return nil, err
	}
	if n > MaxApostasPorLote {
		return nil, fmt.Errorf("%w: lote com %d apostas excede o maximo %d", ErrFrameMalformado, n, MaxApostasPorLote)
	}

	lote := make(domain.Lote, 0, n)
	for i := uint32(0); i < n; i++ {
		aposta, err := LerAposta(r)
		if err != nil {
			return nil, fmt.Errorf("aposta %d do lote: %w", i, err)
		}
		lote = append(lote, aposta)
	}
	return lote, nil
}

func LerAposta(r io.Reader) (domain.Aposta, error) {
	cabecalho, err := lerExato(r, camposPorAposta*tamanhoUint32)
	if err != nil {
		return domain.Aposta{}, err
	}

	var tamanhos [camposPorAposta]int
	total := 0
	for i := range tamanhos {
		t := binary.BigEndian.Uint32(cabecalho[i*tamanhoUint32:])
		if t > MaxTamanhoCampo {
			return domain.Aposta{}, fmt.Errorf("%w: campo %d com %d bytes excede o maximo %d", ErrFrameMalformado, i, t, MaxTamanhoCampo)
		}
		tamanhos[i] = int(t)
		total += int(t)
	}

	corpo, err := lerExato(r, total)
	if err != nil {
		return domain.Aposta{}, err
	}

	var campos [camposPorAposta]string
	inicio := 0
	for i, t := range tamanhos {
		campo := corpo[inicio : inicio+t]
		if !utf8.Valid(campo) {
			return domain.Aposta{}, fmt.Errorf("%w: campo %d nao e UTF-8", ErrFrameMalformado, i)
		}
		campos[i] = string(campo)
		inicio += t
	}

	agencia, err := strconv.ParseUint(campos[0], 10, 32)
	if err != nil {
		return domain.Aposta{}, fmt.Errorf("%w: agencia %q invalida", ErrFrameMalformado, campos[0])
	}

	return domain.Aposta{
		Agencia:    domain.AgenciaID(agencia),
		Nome:       campos[1],
		Sobrenome:  campos[2],
		Documento:  campos[3],
		Nascimento: campos[4],
		Numero:     campos[5],
	}, nil
}

// LerGanhadores decodifica a resposta do servidor com os documentos ganhadores da agência.
func LerGanhadores(r io.Reader) ([]string, error) {
	n, err := LerUint32(r)
	if err != nil {
		return nil, err
	}
	if n > MaxGanhadores {
		return nil, fmt.Errorf("%w: %d ganhadores excede o maximo %d", ErrFrameMalformado, n, MaxGanhadores)
	}

	documentos := make([]string, 0, min(int(n), 1024))
	for i := uint32(0); i < n; i++ {
		t, err := LerUint32(r)
		if err != nil {
			return nil, err
		}
		if t > MaxTamanhoCampo {
			return nil, fmt.Errorf("%w: documento com %d bytes", ErrFrameMalformado, t)
		}
		doc, err := lerExato(r, int(t))
		if err != nil {
			return nil, err
		}
		documentos = append(documentos, string(doc))
	}
	return documentos, nil
}

func camposAposta(a domain.Aposta) [camposPorAposta]string {
	return [camposPorAposta]string{
		strconv.FormatUint(uint64(a.Agencia), 10),
		a.Nome,
		a.Sobrenome,
		a.Documento,
		a.Nascimento,
		a.Numero,
	}
}

// TamanhoAposta é o número de bytes que a aposta ocupa no fio.
func TamanhoAposta(a domain.Aposta) int {
	total := camposPorAposta * tamanhoUint32
	for _, c := range camposAposta(a) {
		total += len(c)
	}
	return total
}

func CodificarAposta(a domain.Aposta) []byte {
	return appendAposta(make([]byte, 0, TamanhoAposta(a)), a)
}

func appendAposta(buf []byte, a domain.Aposta) []byte {
	campos := camposAposta(a)
	for _, c := range campos {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(c)))
	}
	for _, c := range campos {
		buf = append(buf, c...)
	}
	return buf
}

// CodificarLote gera o tamanho do lote seguido das apostas codificadas.
func CodificarLote(lote domain.Lote) []byte {
	tamanho := tamanhoUint32
	for _, a := range lote {
		tamanho += TamanhoAposta(a)
	}
	buf := make([]byte, 0, tamanho)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(lote)))
	for _, a := range lote {
		buf = appendAposta(buf, a)
	}
	return buf
}

func CodificarGanhadores(documentos []string) []byte {
	tamanho := tamanhoUint32
	for _, d := range documentos {
		tamanho += tamanhoUint32 + len(d)
	}
	buf := make([]byte, 0, tamanho)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(documentos)))
	for _, d := range documentos {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(d)))
		buf = append(buf, d...)
	}
	return buf
}

func EscreverUint32(w io.Writer, v uint32) error {
	return escrever(w, binary.BigEndian.AppendUint32(nil, v))
}

// EscreverCabecalhoLotes anuncia quantos lotes seguem na conexão.
func EscreverCabecalhoLotes(w io.Writer, n int) error {
	if n < 0 || n > MaxLotes {
		return fmt.Errorf("%w: %d lotes", ErrFrameMalformado, n)
	}
	return EscreverUint32(w, uint32(n))
}

func EscreverAposta(w io.Writer, a domain.Aposta) error {
	return escrever(w, CodificarAposta(a))
}

func EscreverLote(w io.Writer, lote domain.Lote) error {
	return escrever(w, CodificarLote(lote))
}

func EscreverGanhadores(w io.Writer, documentos []string) error {
	return escrever(w, CodificarGanhadores(documentos))
}

// escrever manda o frame inteiro numa chamada; io.Writer garante erro em escrita parcial.
func escrever(w io.Writer, frame []byte) error {
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("protocolo: escrever frame: %w", err)
	}
	return nil
}
