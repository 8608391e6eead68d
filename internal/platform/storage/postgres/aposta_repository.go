package postgres

import (
	"context"
	"fmt"
	"slices"

	"gorm.io/gorm"

	"github.com/marcelojr/loteria-agencias/internal/domain"
)

const tamanhoInsercao = 500

// ApostaRepository grava lotes de apostas de forma atômica e devolve o conjunto completo para o sorteio.
type ApostaRepository struct {
	db *gorm.DB
}

func NewApostaRepository(db *gorm.DB) *ApostaRepository {
	return &ApostaRepository{db: db}
}

// Armazenar persiste o lote inteiro numa transação: ou todas as apostas entram ou nenhuma.
func (r *ApostaRepository) Armazenar(ctx context.Context, apostas []domain.Aposta) error {
	if len(apostas) == 0 {
		return nil
	}

	// GORM preenche recebida_em vazia no slice que recebe; o lote do chamador fica intacto.
	linhas := slices.Clone(apostas)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&linhas, tamanhoInsercao).Error
	})
	if err != nil {
		return fmt.Errorf("gorm apostas: inserir lote: %w", err)
	}
	return nil
}

// Listar devolve as apostas na ordem de chegada (IDs ULID são monotônicos).
func (r *ApostaRepository) Listar(ctx context.Context) ([]domain.Aposta, error) {
	var apostas []domain.Aposta
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&apostas).Error; err != nil {
		return nil, fmt.Errorf("gorm apostas: listar: %w", err)
	}
	return apostas, nil
}

func (r *ApostaRepository) Total(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.Aposta{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("gorm apostas: total: %w", err)
	}
	return total, nil
}

var _ domain.ApostaRepository = (*ApostaRepository)(nil)
