package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/search-bridge/internal/domain/ids"
	"github.com/bigkaa/search-bridge/internal/domain/model"
	"github.com/bigkaa/search-bridge/internal/repository"
	"github.com/bigkaa/search-bridge/internal/searchplatform"
)

// Detacher — операция отвязки файла от пула, выполняемая движком сверки
// элементов. GroupService вызывает её при удалении пула для каждого файла,
// пока группа ещё существует в ACL элементов.
type Detacher interface {
	DetachFile(ctx context.Context, poolID, fileID string) error
}

// GroupService управляет жизненным циклом внешних групп: одна группа
// платформы на каждый пул знаний.
type GroupService struct {
	gateway     Gateway
	groups      repository.GroupMappingRepository
	memberships repository.MembershipRepository
	detacher    Detacher
	logger      *slog.Logger
}

// NewGroupService создаёт сервис жизненного цикла групп.
// Detacher задаётся отдельно через SetDetacher: движок сверки элементов
// сам зависит от GroupService.
func NewGroupService(
	gateway Gateway,
	groups repository.GroupMappingRepository,
	memberships repository.MembershipRepository,
	logger *slog.Logger,
) *GroupService {
	return &GroupService{
		gateway:     gateway,
		groups:      groups,
		memberships: memberships,
		logger:      logger.With(slog.String("component", "group_service")),
	}
}

// SetDetacher подключает движок сверки элементов после создания обоих сервисов.
func (s *GroupService) SetDetacher(d Detacher) {
	s.detacher = d
}

// EnsureGroup гарантирует существование внешней группы для пула и возвращает
// её маппинг. Безопасен при повторных и конкурентных вызовах: создание группы
// терпит "уже существует", конфликт вставки маппинга разрешается повторным
// чтением.
func (s *GroupService) EnsureGroup(ctx context.Context, poolID string) (*model.GroupMapping, error) {
	if poolID == "" {
		return nil, fmt.Errorf("%w: пустой poolId", ErrValidation)
	}

	existing, err := s.groups.GetByPoolID(ctx, poolID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("чтение маппинга группы: %w", err)
	}

	groupID := ids.GroupIDFor(poolID)
	s.logger.Info("Создаём внешнюю группу для пула",
		slog.String("pool_id", poolID),
		slog.String("group_id", groupID))

	createErr := s.gateway.CreateGroup(ctx, searchplatform.ExternalGroup{
		ID:          groupID,
		DisplayName: "Пул знаний " + poolID,
		Description: "Группа доступа пула знаний Rox " + poolID,
	})
	if createErr != nil && !errors.Is(createErr, searchplatform.ErrConflict) {
		return nil, fmt.Errorf("создание внешней группы: %w", createErr)
	}
	if errors.Is(createErr, searchplatform.ErrConflict) {
		s.logger.Debug("Внешняя группа уже существует, продолжаем",
			slog.String("group_id", groupID))
	}

	mapping := &model.GroupMapping{
		PoolID:    poolID,
		GroupID:   groupID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.groups.Create(ctx, mapping); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Конкурентный вызов успел первым — берём его результат
			return s.groups.GetByPoolID(ctx, poolID)
		}
		return nil, fmt.Errorf("сохранение маппинга группы: %w", err)
	}

	return mapping, nil
}

// ResolveGroupID возвращает идентификатор внешней группы пула: из маппинга,
// если он есть, иначе детерминированным выводом. Работает и после удаления
// маппинга незавершённой сагой удаления пула.
func (s *GroupService) ResolveGroupID(ctx context.Context, poolID string) string {
	if mapping, err := s.groups.GetByPoolID(ctx, poolID); err == nil {
		return mapping.GroupID
	}
	return ids.GroupIDFor(poolID)
}

// RemoveGroup удаляет пул: отвязывает все его файлы от элементов платформы,
// чистит членства, удаляет внешнюю группу и маппинг. Сага из идемпотентных
// шагов: падение между шагами лечится повторным вызовом — идентификатор
// группы при необходимости выводится заново без строки маппинга.
func (s *GroupService) RemoveGroup(ctx context.Context, poolID string) error {
	if poolID == "" {
		return fmt.Errorf("%w: пустой poolId", ErrValidation)
	}

	// Шаг 1: отвязываем файлы, пока группа ещё упоминается в их ACL
	fileIDs, err := s.memberships.ListFilesByPool(ctx, poolID)
	if err != nil {
		return fmt.Errorf("список файлов пула: %w", err)
	}
	for _, fileID := range fileIDs {
		if err := s.detacher.DetachFile(ctx, poolID, fileID); err != nil {
			return fmt.Errorf("отвязка файла %s от пула %s: %w", fileID, poolID, err)
		}
	}

	// Шаг 2: подчищаем оставшиеся членства пула
	removed, err := s.memberships.DeleteByPool(ctx, poolID)
	if err != nil {
		return fmt.Errorf("удаление членств пула: %w", err)
	}
	if removed > 0 {
		s.logger.Debug("Удалены остаточные членства пула",
			slog.String("pool_id", poolID),
			slog.Int("count", removed))
	}

	// Шаг 3: удаляем внешнюю группу; идентификатор выводим заново,
	// если маппинг уже удалён предыдущей незавершённой попыткой
	groupID := ids.GroupIDFor(poolID)
	if mapping, err := s.groups.GetByPoolID(ctx, poolID); err == nil {
		groupID = mapping.GroupID
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("чтение маппинга группы: %w", err)
	}

	if err := s.gateway.DeleteGroup(ctx, groupID); err != nil {
		if !errors.Is(err, searchplatform.ErrNotFound) {
			return fmt.Errorf("удаление внешней группы: %w", err)
		}
		s.logger.Debug("Внешняя группа уже отсутствует",
			slog.String("group_id", groupID))
	}

	// Шаг 4: удаляем маппинг
	if err := s.groups.Delete(ctx, poolID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("удаление маппинга группы: %w", err)
	}

	s.logger.Info("Пул удалён",
		slog.String("pool_id", poolID),
		slog.String("group_id", groupID),
		slog.Int("detached_files", len(fileIDs)))
	return nil
}
