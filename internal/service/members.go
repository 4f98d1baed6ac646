package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/search-bridge/internal/searchplatform"
)

// MemberService синхронизирует членства групп каталога во внешних группах
// платформы. При включённом обходе membership API платформы не вызывается:
// доступ выдаётся через ACL элементов.
type MemberService struct {
	gateway       Gateway
	groups        *GroupService
	aclWorkaround bool
	logger        *slog.Logger
}

// NewMemberService создаёт синхронизатор членств.
func NewMemberService(gateway Gateway, groups *GroupService, aclWorkaround bool, logger *slog.Logger) *MemberService {
	return &MemberService{
		gateway:       gateway,
		groups:        groups,
		aclWorkaround: aclWorkaround,
		logger:        logger.With(slog.String("component", "member_service")),
	}
}

// AddMember добавляет группу каталога в члены внешней группы пула.
// Пустой directoryGroupId — no-op: часть внутренних групп не отображается
// на каталог. Конфликт "уже член" считается успехом.
func (s *MemberService) AddMember(ctx context.Context, poolID, directoryGroupID string) error {
	if poolID == "" {
		return fmt.Errorf("%w: пустой poolId", ErrValidation)
	}
	if directoryGroupID == "" {
		s.logger.Debug("Пустой directoryGroupId, членство не синхронизируется",
			slog.String("pool_id", poolID))
		return nil
	}

	mapping, err := s.groups.EnsureGroup(ctx, poolID)
	if err != nil {
		return err
	}

	if s.aclWorkaround {
		s.logger.Info("Обход membership API включён, добавление члена пропущено",
			slog.String("pool_id", poolID),
			slog.String("directory_group_id", directoryGroupID))
		return nil
	}

	member := searchplatform.GroupMember{
		ID:   directoryGroupID,
		Type: searchplatform.MemberTypeGroup,
	}
	if err := s.gateway.AddGroupMember(ctx, mapping.GroupID, member); err != nil {
		if errors.Is(err, searchplatform.ErrConflict) {
			s.logger.Debug("Группа каталога уже член внешней группы",
				slog.String("group_id", mapping.GroupID),
				slog.String("directory_group_id", directoryGroupID))
			return nil
		}
		return fmt.Errorf("добавление члена группы: %w", err)
	}

	s.logger.Info("Группа каталога добавлена в члены внешней группы",
		slog.String("pool_id", poolID),
		slog.String("group_id", mapping.GroupID),
		slog.String("directory_group_id", directoryGroupID))
	return nil
}

// RemoveMember удаляет группу каталога из членов внешней группы пула.
// Ответ "член не найден" пробрасывается как ошибка: неожиданное отсутствие
// может означать пропущенное ранее событие, о котором вызывающий должен знать.
func (s *MemberService) RemoveMember(ctx context.Context, poolID, directoryGroupID string) error {
	if poolID == "" {
		return fmt.Errorf("%w: пустой poolId", ErrValidation)
	}
	if directoryGroupID == "" {
		s.logger.Debug("Пустой directoryGroupId, членство не синхронизируется",
			slog.String("pool_id", poolID))
		return nil
	}

	mapping, err := s.groups.EnsureGroup(ctx, poolID)
	if err != nil {
		return err
	}

	if s.aclWorkaround {
		s.logger.Info("Обход membership API включён, удаление члена пропущено",
			slog.String("pool_id", poolID),
			slog.String("directory_group_id", directoryGroupID))
		return nil
	}

	if err := s.gateway.RemoveGroupMember(ctx, mapping.GroupID, directoryGroupID); err != nil {
		return fmt.Errorf("удаление члена группы: %w", err)
	}

	s.logger.Info("Группа каталога удалена из членов внешней группы",
		slog.String("pool_id", poolID),
		slog.String("group_id", mapping.GroupID),
		slog.String("directory_group_id", directoryGroupID))
	return nil
}
