package protocolo

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Tokens de controle trafegam como texto cru terminado em '\n', sem prefixo de tamanho.
const (
	TokenFim  = "END"
	TokenOK   = "OK"
	TokenErro = "ERROR"

	maxTamanhoToken = 64
)

// LerToken lê até o '\n' e devolve a linha sem terminador (aceita "\r\n").
func LerToken(r io.ByteReader) (string, error) {
	var sb strings.Builder
	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("%w: %w", ErrConexaoEncerrada, io.ErrUnexpectedEOF)
			}
			return "", err
		}
		if b == '\n' {
			return strings.TrimSuffix(sb.String(), "\r"), nil
		}
		if sb.Len() >= maxTamanhoToken {
			return "", fmt.Errorf("%w: token excede %d bytes", ErrFrameMalformado, maxTamanhoToken)
		}
		sb.WriteByte(b)
	}
}

func EscreverToken(w io.Writer, token string) error {
	return escrever(w, []byte(token+"\n"))
}
