package repository

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

// Migrate применяет схему. Все выражения идемпотентны.
func Migrate(ctx context.Context, db *pgxpool.Pool, log logger.Logger) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		log.Error("Failed to apply schema", "error", err)
		return fmt.Errorf("apply schema: %w", err)
	}
	log.Info("Database schema applied")
	return nil
}
