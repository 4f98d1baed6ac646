package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/search-bridge/internal/domain/model"
)

// GroupMappingRepository — интерфейс CRUD для таблицы group_mappings.
type GroupMappingRepository interface {
	// Create сохраняет маппинг пул → внешняя группа.
	// Дублирующий pool_id или group_id — ErrConflict.
	Create(ctx context.Context, m *model.GroupMapping) error
	// GetByPoolID возвращает маппинг по идентификатору пула.
	GetByPoolID(ctx context.Context, poolID string) (*model.GroupMapping, error)
	// Delete удаляет маппинг пула. Отсутствующая запись — ErrNotFound.
	Delete(ctx context.Context, poolID string) error
	// Count возвращает количество маппингов.
	Count(ctx context.Context) (int, error)
}

// groupMappingRepo — реализация GroupMappingRepository.
type groupMappingRepo struct {
	db DBTX
}

// NewGroupMappingRepository создаёт репозиторий маппингов групп.
func NewGroupMappingRepository(db DBTX) GroupMappingRepository {
	return &groupMappingRepo{db: db}
}

func (r *groupMappingRepo) Create(ctx context.Context, m *model.GroupMapping) error {
	query := `
		INSERT INTO group_mappings (pool_id, group_id)
		VALUES ($1, $2)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query, m.PoolID, m.GroupID).Scan(&m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: маппинг для пула %s уже существует", ErrConflict, m.PoolID)
		}
		return fmt.Errorf("ошибка создания маппинга группы: %w", err)
	}
	return nil
}

func (r *groupMappingRepo) GetByPoolID(ctx context.Context, poolID string) (*model.GroupMapping, error) {
	query := `SELECT pool_id, group_id, created_at FROM group_mappings WHERE pool_id = $1`

	m := &model.GroupMapping{}
	err := r.db.QueryRow(ctx, query, poolID).Scan(&m.PoolID, &m.GroupID, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения маппинга группы: %w", err)
	}
	return m, nil
}

func (r *groupMappingRepo) Delete(ctx context.Context, poolID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM group_mappings WHERE pool_id = $1`, poolID)
	if err != nil {
		return fmt.Errorf("ошибка удаления маппинга группы: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *groupMappingRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM group_mappings`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта маппингов групп: %w", err)
	}
	return count, nil
}
