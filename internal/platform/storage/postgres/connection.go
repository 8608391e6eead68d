// Pacote postgres implementa a camada de persistência das apostas via GORM (Postgres em produção, SQLite local).
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func Open(ctx context.Context, dsn string) (*gorm.DB, error) {
	return open(ctx, postgres.Open(dsn), 25)
}

// OpenSQLite serve para rodar o servidor sem Postgres; uma conexão só evita "database is locked".
func OpenSQLite(ctx context.Context, path string) (*gorm.DB, error) {
	return open(ctx, sqlite.Open(path), 1)
}

func open(ctx context.Context, dialector gorm.Dialector, maxConns int) (*gorm.DB, error) {
	// Configuração mínima: nomes padrão e logs somente em WARN para evitar ruído.
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: false,
		},
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("gorm: abrir conexao: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm: obter sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(60 * time.Minute)

	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctxPing); err != nil {
		return nil, fmt.Errorf("gorm: ping falhou: %w", err)
	}

	return gormDB, nil
}
