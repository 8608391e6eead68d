package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marcelojr/loteria-agencias/internal/domain"
)

// Resultados publica o sorteio em hashes Redis para consulta fora do processo do servidor.
//
// Layout:
//
//	<prefix>:<id>             hash com executado_em e apostas_avaliadas
//	<prefix>:<id>:ganhadores  hash agencia -> JSON com os documentos ganhadores
//	<prefix>:ultimo           id do último sorteio publicado
type Resultados struct {
	client *redis.Client
	prefix string
}

func NewResultados(client *redis.Client, prefix string) *Resultados {
	if prefix == "" {
		prefix = "sorteio"
	}
	return &Resultados{client: client, prefix: prefix}
}

func (r *Resultados) Publicar(ctx context.Context, resultado domain.ResultadoSorteio) error {
	campos := make(map[string]any, len(resultado.Ganhadores))
	for agencia, documentos := range resultado.Ganhadores {
		if documentos == nil {
			documentos = []string{}
		}
		payload, err := json.Marshal(documentos)
		if err != nil {
			return fmt.Errorf("redis resultados: serializar agencia %d: %w", agencia, err)
		}
		campos[campoAgencia(agencia)] = payload
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.chaveSorteio(resultado.ID),
			"executado_em", resultado.ExecutadoEm.UTC().Format(time.RFC3339Nano),
			"apostas_avaliadas", resultado.ApostasAvaliadas,
		)
		if len(campos) > 0 {
			pipe.HSet(ctx, r.chaveGanhadores(resultado.ID), campos)
		}
		pipe.Set(ctx, r.chaveUltimo(), string(resultado.ID), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis resultados: publicar %s: %w", resultado.ID, err)
	}
	return nil
}

func (r *Resultados) Ganhadores(ctx context.Context, id domain.SorteioID, agencia domain.AgenciaID) ([]string, error) {
	raw, err := r.client.HGet(ctx, r.chaveGanhadores(id), campoAgencia(agencia)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis resultados: ler ganhadores: %w", err)
	}

	var documentos []string
	if err := json.Unmarshal(raw, &documentos); err != nil {
		return nil, fmt.Errorf("redis resultados: payload invalido: %w", err)
	}
	return documentos, nil
}

func (r *Resultados) Ultimo(ctx context.Context) (domain.SorteioID, error) {
	id, err := r.client.Get(ctx, r.chaveUltimo()).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis resultados: ler ultimo: %w", err)
	}
	return domain.SorteioID(id), nil
}

func (r *Resultados) chaveSorteio(id domain.SorteioID) string {
	return fmt.Sprintf("%s:%s", r.prefix, id)
}

func (r *Resultados) chaveGanhadores(id domain.SorteioID) string {
	return fmt.Sprintf("%s:%s:ganhadores", r.prefix, id)
}

func (r *Resultados) chaveUltimo() string {
	return r.prefix + ":ultimo"
}

func campoAgencia(agencia domain.AgenciaID) string {
	return strconv.FormatUint(uint64(agencia), 10)
}

var _ domain.PublicadorResultados = (*Resultados)(nil)
