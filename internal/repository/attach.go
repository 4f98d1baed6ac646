package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/search-bridge/internal/domain/model"
)

// AttachmentWriter — транзакционная запись результата привязки файла к пулу.
// Маппинг файл → элемент и членство файла в пуле сохраняются как единое
// целое: после повторной попытки наблюдается либо обе записи, либо ни одной.
type AttachmentWriter interface {
	// SaveAttachment сохраняет маппинг элемента и членство в одной транзакции.
	// Обе вставки идемпотентны (create if absent) — повтор того же события
	// не приводит к ошибке.
	SaveAttachment(ctx context.Context, m *model.ItemMapping, poolID string) error
}

// attachmentWriter — реализация AttachmentWriter поверх TxRunner.
type attachmentWriter struct {
	runner *TxRunner
}

// NewAttachmentWriter создаёт транзакционную запись привязок.
func NewAttachmentWriter(runner *TxRunner) AttachmentWriter {
	return &attachmentWriter{runner: runner}
}

func (w *attachmentWriter) SaveAttachment(ctx context.Context, m *model.ItemMapping, poolID string) error {
	return w.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO item_mappings (file_id, item_id)
			VALUES ($1, $2)
			ON CONFLICT (file_id) DO NOTHING`,
			m.FileID, m.ItemID,
		)
		if err != nil {
			return fmt.Errorf("ошибка сохранения маппинга элемента: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO file_pool_memberships (file_id, pool_id)
			VALUES ($1, $2)
			ON CONFLICT (file_id, pool_id) DO NOTHING`,
			m.FileID, poolID,
		)
		if err != nil {
			return fmt.Errorf("ошибка сохранения членства: %w", err)
		}

		return nil
	})
}
