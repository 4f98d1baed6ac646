package repository

import (
	"context"
	"fmt"
)

// MembershipRepository — интерфейс для таблицы file_pool_memberships.
// Членство файла в пулах — источник истины для вопроса
// "каким пулам ещё нужен этот файл".
type MembershipRepository interface {
	// Create сохраняет членство файла в пуле. Дублирующая пара — ErrConflict.
	Create(ctx context.Context, fileID, poolID string) error
	// Delete удаляет членство файла в пуле. Отсутствующая пара — ErrNotFound.
	Delete(ctx context.Context, fileID, poolID string) error
	// DeleteByPool удаляет все членства пула, возвращает количество удалённых.
	DeleteByPool(ctx context.Context, poolID string) (int, error)
	// ListPoolsByFile возвращает пулы файла в порядке добавления.
	ListPoolsByFile(ctx context.Context, fileID string) ([]string, error)
	// ListFilesByPool возвращает файлы пула в порядке добавления.
	ListFilesByPool(ctx context.Context, poolID string) ([]string, error)
	// Count возвращает количество членств.
	Count(ctx context.Context) (int, error)
}

// membershipRepo — реализация MembershipRepository.
type membershipRepo struct {
	db DBTX
}

// NewMembershipRepository создаёт репозиторий членств файлов в пулах.
func NewMembershipRepository(db DBTX) MembershipRepository {
	return &membershipRepo{db: db}
}

func (r *membershipRepo) Create(ctx context.Context, fileID, poolID string) error {
	query := `INSERT INTO file_pool_memberships (file_id, pool_id) VALUES ($1, $2)`

	_, err := r.db.Exec(ctx, query, fileID, poolID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл %s уже входит в пул %s", ErrConflict, fileID, poolID)
		}
		return fmt.Errorf("ошибка создания членства: %w", err)
	}
	return nil
}

func (r *membershipRepo) Delete(ctx context.Context, fileID, poolID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM file_pool_memberships WHERE file_id = $1 AND pool_id = $2`,
		fileID, poolID,
	)
	if err != nil {
		return fmt.Errorf("ошибка удаления членства: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *membershipRepo) DeleteByPool(ctx context.Context, poolID string) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM file_pool_memberships WHERE pool_id = $1`, poolID)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления членств пула: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *membershipRepo) ListPoolsByFile(ctx context.Context, fileID string) ([]string, error) {
	query := `
		SELECT pool_id
		FROM file_pool_memberships
		WHERE file_id = $1
		ORDER BY created_at, pool_id`

	rows, err := r.db.Query(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пулов файла: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var poolID string
		if err := rows.Scan(&poolID); err != nil {
			return nil, fmt.Errorf("ошибка сканирования членства: %w", err)
		}
		result = append(result, poolID)
	}
	return result, rows.Err()
}

func (r *membershipRepo) ListFilesByPool(ctx context.Context, poolID string) ([]string, error) {
	query := `
		SELECT file_id
		FROM file_pool_memberships
		WHERE pool_id = $1
		ORDER BY created_at, file_id`

	rows, err := r.db.Query(ctx, query, poolID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения файлов пула: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var fileID string
		if err := rows.Scan(&fileID); err != nil {
			return nil, fmt.Errorf("ошибка сканирования членства: %w", err)
		}
		result = append(result, fileID)
	}
	return result, rows.Err()
}

func (r *membershipRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM file_pool_memberships`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта членств: %w", err)
	}
	return count, nil
}
