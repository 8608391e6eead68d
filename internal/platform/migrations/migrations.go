// Pacote migrations versiona o schema das apostas com gormigrate.
package migrations

import (
	"context"
	"errors"
	"fmt"

	gormigrate "github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/marcelojr/loteria-agencias/internal/domain"
)

const indiceAgenciaDocumento = "idx_apostas_agencia_documento"

func lista() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "202503010001_apostas",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&domain.Aposta{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("apostas")
			},
		},
		{
			// Consultas de auditoria procuram a aposta pelo documento dentro da agência.
			ID: "202503020001_apostas_agencia_documento",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec("CREATE INDEX IF NOT EXISTS " + indiceAgenciaDocumento + " ON apostas (agencia, documento)").Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP INDEX IF EXISTS " + indiceAgenciaDocumento).Error
			},
		},
	}
}

// Versoes devolve os IDs das migrations na ordem em que são aplicadas.
func Versoes() []string {
	ms := lista()
	ids := make([]string, len(ms))
	for i, m := range ms {
		ids[i] = m.ID
	}
	return ids
}

func Run(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("migrations: db nulo")
	}

	m := gormigrate.New(db.WithContext(ctx), gormigrate.DefaultOptions, lista())
	if err := m.Migrate(); err != nil {
		return fmt.Errorf("migrations: aplicar: %w", err)
	}
	return nil
}
