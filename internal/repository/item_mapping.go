package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/search-bridge/internal/domain/model"
)

// ItemMappingRepository — интерфейс CRUD для таблицы item_mappings.
type ItemMappingRepository interface {
	// Create сохраняет маппинг файл → внешний элемент.
	// Дублирующий file_id или item_id — ErrConflict.
	Create(ctx context.Context, m *model.ItemMapping) error
	// GetByFileID возвращает маппинг по идентификатору файла.
	GetByFileID(ctx context.Context, fileID string) (*model.ItemMapping, error)
	// Delete удаляет маппинг файла. Отсутствующая запись — ErrNotFound.
	Delete(ctx context.Context, fileID string) error
	// Count возвращает количество маппингов.
	Count(ctx context.Context) (int, error)
}

// itemMappingRepo — реализация ItemMappingRepository.
type itemMappingRepo struct {
	db DBTX
}

// NewItemMappingRepository создаёт репозиторий маппингов элементов.
func NewItemMappingRepository(db DBTX) ItemMappingRepository {
	return &itemMappingRepo{db: db}
}

func (r *itemMappingRepo) Create(ctx context.Context, m *model.ItemMapping) error {
	query := `
		INSERT INTO item_mappings (file_id, item_id)
		VALUES ($1, $2)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query, m.FileID, m.ItemID).Scan(&m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: маппинг для файла %s уже существует", ErrConflict, m.FileID)
		}
		return fmt.Errorf("ошибка создания маппинга элемента: %w", err)
	}
	return nil
}

func (r *itemMappingRepo) GetByFileID(ctx context.Context, fileID string) (*model.ItemMapping, error) {
	query := `SELECT file_id, item_id, created_at FROM item_mappings WHERE file_id = $1`

	m := &model.ItemMapping{}
	err := r.db.QueryRow(ctx, query, fileID).Scan(&m.FileID, &m.ItemID, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения маппинга элемента: %w", err)
	}
	return m, nil
}

func (r *itemMappingRepo) Delete(ctx context.Context, fileID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM item_mappings WHERE file_id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("ошибка удаления маппинга элемента: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *itemMappingRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM item_mappings`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта маппингов элементов: %w", err)
	}
	return count, nil
}
