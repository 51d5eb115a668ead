package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/faltrading/FAL-chat-service/pkg/errors"
)

// SQLSTATE, означающие нехватку ресурсов хранилища
var exhaustedCodes = map[string]struct{}{
	"53100": {}, // disk_full
	"53200": {}, // out_of_memory
	"53400": {}, // configuration_limit_exceeded
	"54000": {}, // program_limit_exceeded
}

var exhaustedKeywords = []string{"disk full", "no space left", "quota", "storage"}

// storageError приводит ошибку драйвера к ErrStorageExhausted или ErrStorageUnavailable.
// Уже типизированные ошибки возвращаются как есть.
func storageError(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		apperrors.ErrStorageExhausted, apperrors.ErrStorageUnavailable,
		apperrors.ErrMessageNotFound, apperrors.ErrReplyTargetNotFound,
		apperrors.ErrGroupNotFound,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	if isExhausted(err) {
		return fmt.Errorf("%w: %w", apperrors.ErrStorageExhausted, err)
	}
	return fmt.Errorf("%w: %w", apperrors.ErrStorageUnavailable, err)
}

func isExhausted(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := exhaustedCodes[pgErr.Code]
		return ok
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range exhaustedKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
