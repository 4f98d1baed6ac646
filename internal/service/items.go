package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/search-bridge/internal/domain/ids"
	"github.com/bigkaa/search-bridge/internal/domain/model"
	"github.com/bigkaa/search-bridge/internal/extract"
	"github.com/bigkaa/search-bridge/internal/repository"
	"github.com/bigkaa/search-bridge/internal/searchplatform"
)

// Максимальная длина свойства description в символах.
// Остаток извлечённого текста живёт в content элемента.
const maxDescriptionRunes = 200

// ItemService — движок сверки внешних элементов. Поддерживает жизненный цикл
// элемента: отсутствует → существует с ACL → отсутствует. Состояния
// "существует с пустым ACL" нет: последний отозванный grant удаляет элемент.
type ItemService struct {
	gateway       Gateway
	bootstrap     *BootstrapService
	groups        *GroupService
	items         repository.ItemMappingRepository
	memberships   repository.MembershipRepository
	attachments   repository.AttachmentWriter
	roxBaseURL    string
	aclWorkaround bool
	logger        *slog.Logger
}

// NewItemService создаёт движок сверки элементов.
func NewItemService(
	gateway Gateway,
	bootstrap *BootstrapService,
	groups *GroupService,
	items repository.ItemMappingRepository,
	memberships repository.MembershipRepository,
	attachments repository.AttachmentWriter,
	roxBaseURL string,
	aclWorkaround bool,
	logger *slog.Logger,
) *ItemService {
	return &ItemService{
		gateway:       gateway,
		bootstrap:     bootstrap,
		groups:        groups,
		items:         items,
		memberships:   memberships,
		attachments:   attachments,
		roxBaseURL:    roxBaseURL,
		aclWorkaround: aclWorkaround,
		logger:        logger.With(slog.String("component", "item_service")),
	}
}

// AttachFile привязывает файл к пулу: создаёт или дополняет внешний элемент,
// затем сохраняет маппинг и членство одной транзакцией. Повторный вызов
// с теми же аргументами не дублирует grant'ы и не создаёт элемент заново.
func (s *ItemService) AttachFile(ctx context.Context, poolID string, file *model.SyncFile) error {
	if poolID == "" {
		return fmt.Errorf("%w: пустой poolId", ErrValidation)
	}
	if file == nil || file.ID == "" {
		return fmt.Errorf("%w: пустой fileId", ErrValidation)
	}

	if err := s.bootstrap.EnsureConnection(ctx); err != nil {
		return err
	}

	groupMapping, err := s.groups.EnsureGroup(ctx, poolID)
	if err != nil {
		return err
	}
	groupID := groupMapping.GroupID
	itemID := ids.ItemIDFor(file.ID)

	// Полный список пулов файла: существующие членства плюс привязываемый
	pools, err := s.memberships.ListPoolsByFile(ctx, file.ID)
	if err != nil {
		return fmt.Errorf("список пулов файла: %w", err)
	}
	pools = appendPool(pools, poolID)

	localMapping, err := s.items.GetByFileID(ctx, file.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("чтение маппинга элемента: %w", err)
	}

	item, err := s.gateway.GetItem(ctx, itemID)
	if err != nil && !errors.Is(err, searchplatform.ErrNotFound) {
		return fmt.Errorf("получение элемента: %w", err)
	}

	switch {
	case item != nil:
		// Элемент существует — дополняем его ACL
		if err := s.mergeGrants(ctx, item, groupID, pools); err != nil {
			return err
		}
	case localMapping != nil:
		// Маппинг утверждает, что элемент создавался, а платформа его не
		// находит. Пересоздание вслепую потеряло бы накопленный ACL.
		return fmt.Errorf("%w: элемент %s ожидался на платформе, но отсутствует",
			ErrInconsistent, itemID)
	default:
		// Файл виден впервые — создаём элемент целиком
		if err := s.createItem(ctx, itemID, groupID, pools, file); err != nil {
			return err
		}
	}

	// Маппинг и членство сохраняются как единое целое
	mapping := &model.ItemMapping{
		FileID:    file.ID,
		ItemID:    itemID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.attachments.SaveAttachment(ctx, mapping, poolID); err != nil {
		return fmt.Errorf("сохранение привязки: %w", err)
	}

	s.logger.Info("Файл привязан к пулу",
		slog.String("file_id", file.ID),
		slog.String("pool_id", poolID),
		slog.String("item_id", itemID))
	return nil
}

// mergeGrants дополняет ACL существующего элемента grant'ом группы пула
// (и "everyone"-grant'ом при включённом обходе членства). Если оба уже
// присутствуют, запись на платформу не выполняется.
func (s *ItemService) mergeGrants(ctx context.Context, item *searchplatform.ExternalItem, groupID string, pools []string) error {
	acl := item.ACL
	changed := false

	if s.aclWorkaround && !hasEveryoneGrant(acl) {
		acl = append(acl, everyoneGrant())
		changed = true
	}
	if !hasGroupGrant(acl, groupID) {
		acl = append(acl, groupGrant(groupID))
		changed = true
	}

	if !changed {
		s.logger.Debug("ACL элемента уже содержит нужные grant'ы, запись пропущена",
			slog.String("item_id", item.ID))
		return nil
	}

	// Частичное обновление: только ACL и список пулов
	update := &searchplatform.ExternalItem{
		ID:  item.ID,
		ACL: acl,
		Properties: &searchplatform.ItemProperties{
			KnowledgePoolIDs: joinPools(pools),
		},
	}
	if err := s.gateway.UpsertItem(ctx, update); err != nil {
		return fmt.Errorf("обновление ACL элемента: %w", err)
	}
	return nil
}

// createItem строит и создаёт внешний элемент целиком: содержимое,
// все свойства и начальный ACL.
func (s *ItemService) createItem(ctx context.Context, itemID, groupID string, pools []string, file *model.SyncFile) error {
	text := ""
	if file.Content != nil {
		var err error
		text, err = extract.Extract(file.Content)
		if err != nil {
			return fmt.Errorf("извлечение текста файла %s: %w", file.ID, err)
		}
	}

	acl := make([]searchplatform.ACLEntry, 0, 2)
	if s.aclWorkaround {
		acl = append(acl, everyoneGrant())
	}
	acl = append(acl, groupGrant(groupID))

	item := &searchplatform.ExternalItem{
		ID: itemID,
		Content: &searchplatform.ItemContent{
			Type:  "text",
			Value: text,
		},
		Properties: s.fullProperties(file, pools, text),
		ACL:        acl,
	}
	if err := s.gateway.UpsertItem(ctx, item); err != nil {
		return fmt.Errorf("создание элемента: %w", err)
	}

	s.logger.Info("Создан внешний элемент",
		slog.String("item_id", itemID),
		slog.Int("content_bytes", len(text)))
	return nil
}

// DetachFile отвязывает файл от пула. Членство удаляется из локального
// хранилища первым: оно — источник истины о том, каким пулам файл ещё нужен,
// и падение после этого шага не оставит grant навсегда. Когда у элемента
// не остаётся grant'ов внешних групп, элемент удаляется с платформы.
func (s *ItemService) DetachFile(ctx context.Context, poolID, fileID string) error {
	if poolID == "" {
		return fmt.Errorf("%w: пустой poolId", ErrValidation)
	}
	if fileID == "" {
		return fmt.Errorf("%w: пустой fileId", ErrValidation)
	}

	if err := s.memberships.Delete(ctx, fileID, poolID); err != nil &&
		!errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("удаление членства: %w", err)
	}

	// Идентификатор группы восстанавливается и без строки маппинга:
	// пул мог быть удалён ранее незавершённой сагой
	groupID := s.groups.ResolveGroupID(ctx, poolID)
	itemID := ids.ItemIDFor(fileID)

	item, err := s.gateway.GetItem(ctx, itemID)
	if errors.Is(err, searchplatform.ErrNotFound) {
		// Элемент уже убран — подчищаем устаревший маппинг и выходим
		if delErr := s.items.Delete(ctx, fileID); delErr != nil &&
			!errors.Is(delErr, repository.ErrNotFound) {
			return fmt.Errorf("удаление маппинга элемента: %w", delErr)
		}
		s.logger.Info("Элемент уже отсутствует на платформе, отвязка пропущена",
			slog.String("file_id", fileID),
			slog.String("item_id", itemID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("получение элемента: %w", err)
	}

	acl := removeGroupGrant(item.ACL, groupID)
	remaining := countGroupGrants(acl)

	if remaining == 0 {
		// Последний grant отозван — элемент удаляется целиком
		if err := s.gateway.DeleteItem(ctx, itemID); err != nil &&
			!errors.Is(err, searchplatform.ErrNotFound) {
			return fmt.Errorf("удаление элемента: %w", err)
		}
		if err := s.items.Delete(ctx, fileID); err != nil &&
			!errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("удаление маппинга элемента: %w", err)
		}
		s.logger.Info("Элемент удалён: не осталось grant'ов групп",
			slog.String("file_id", fileID),
			slog.String("item_id", itemID))
		return nil
	}

	pools, err := s.memberships.ListPoolsByFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("список пулов файла: %w", err)
	}

	update := &searchplatform.ExternalItem{
		ID:  itemID,
		ACL: acl,
		Properties: &searchplatform.ItemProperties{
			KnowledgePoolIDs: joinPools(pools),
		},
	}
	if err := s.gateway.UpsertItem(ctx, update); err != nil {
		return fmt.Errorf("обновление ACL элемента: %w", err)
	}

	s.logger.Info("Файл отвязан от пула",
		slog.String("file_id", fileID),
		slog.String("pool_id", poolID),
		slog.Int("remaining_grants", remaining))
	return nil
}

// UpdateFile обновляет содержимое и свойства элемента. ACL не отправляется:
// частичное обновление не должно трогать накопленные grant'ы. Если элемента
// нет и файл не состоит ни в одном пуле, обновление пропускается — выдавать
// доступ некому.
func (s *ItemService) UpdateFile(ctx context.Context, file *model.SyncFile) error {
	if file == nil || file.ID == "" {
		return fmt.Errorf("%w: пустой fileId", ErrValidation)
	}

	if err := s.bootstrap.EnsureConnection(ctx); err != nil {
		return err
	}

	text := ""
	if file.Content != nil {
		var err error
		text, err = extract.Extract(file.Content)
		if err != nil {
			return fmt.Errorf("извлечение текста файла %s: %w", file.ID, err)
		}
	}

	pools, err := s.memberships.ListPoolsByFile(ctx, file.ID)
	if err != nil {
		return fmt.Errorf("список пулов файла: %w", err)
	}

	itemID := ids.ItemIDFor(file.ID)
	_, err = s.gateway.GetItem(ctx, itemID)
	switch {
	case err == nil:
		// Элемент существует: обновляем содержимое и свойства, ACL не трогаем
		update := &searchplatform.ExternalItem{
			ID: itemID,
			Content: &searchplatform.ItemContent{
				Type:  "text",
				Value: text,
			},
			Properties: s.fullProperties(file, pools, text),
		}
		if err := s.gateway.UpsertItem(ctx, update); err != nil {
			return fmt.Errorf("обновление элемента: %w", err)
		}
	case errors.Is(err, searchplatform.ErrNotFound):
		if len(pools) == 0 {
			s.logger.Info("Файл не состоит ни в одном пуле, обновление пропущено",
				slog.String("file_id", file.ID))
			return nil
		}
		// Элемент потерян, но членства известны — восстанавливаем его
		// с полным ACL из всех текущих пулов
		acl := make([]searchplatform.ACLEntry, 0, len(pools)+1)
		if s.aclWorkaround {
			acl = append(acl, everyoneGrant())
		}
		for _, poolID := range pools {
			acl = append(acl, groupGrant(s.groups.ResolveGroupID(ctx, poolID)))
		}

		item := &searchplatform.ExternalItem{
			ID: itemID,
			Content: &searchplatform.ItemContent{
				Type:  "text",
				Value: text,
			},
			Properties: s.fullProperties(file, pools, text),
			ACL:        acl,
		}
		if err := s.gateway.UpsertItem(ctx, item); err != nil {
			return fmt.Errorf("создание элемента: %w", err)
		}

		mapping := &model.ItemMapping{
			FileID:    file.ID,
			ItemID:    itemID,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.items.Create(ctx, mapping); err != nil &&
			!errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("сохранение маппинга элемента: %w", err)
		}
		s.logger.Info("Элемент восстановлен из известных членств",
			slog.String("item_id", itemID),
			slog.Int("pools", len(pools)))
	default:
		return fmt.Errorf("получение элемента: %w", err)
	}

	s.logger.Info("Содержимое файла обновлено",
		slog.String("file_id", file.ID),
		slog.String("item_id", itemID))
	return nil
}

// fullProperties строит полный набор свойств элемента.
func (s *ItemService) fullProperties(file *model.SyncFile, pools []string, text string) *searchplatform.ItemProperties {
	return &searchplatform.ItemProperties{
		Title:            file.Title,
		URL:              s.roxBaseURL + "/doc/" + file.ID,
		RoxFileID:        file.ID,
		IconURL:          s.roxBaseURL + "/favicon.ico",
		KnowledgePoolIDs: joinPools(pools),
		Description:      truncateDescription(text),
	}
}

// --- ACL-помощники ---

// everyoneGrant строит grant для всех пользователей каталога. Платформа
// требует непустое значение value, поэтому подставляется свежий UUID.
func everyoneGrant() searchplatform.ACLEntry {
	return searchplatform.ACLEntry{
		Type:   searchplatform.ACLTypeEveryone,
		Value:  uuid.New().String(),
		Access: searchplatform.ACLAccessGrant,
	}
}

// groupGrant строит grant для конкретной внешней группы.
func groupGrant(groupID string) searchplatform.ACLEntry {
	return searchplatform.ACLEntry{
		Type:   searchplatform.ACLTypeExternalGroup,
		Value:  groupID,
		Access: searchplatform.ACLAccessGrant,
	}
}

// hasEveryoneGrant проверяет наличие "everyone"-grant'а в ACL.
func hasEveryoneGrant(acl []searchplatform.ACLEntry) bool {
	for _, e := range acl {
		if e.Type == searchplatform.ACLTypeEveryone && e.Access == searchplatform.ACLAccessGrant {
			return true
		}
	}
	return false
}

// hasGroupGrant проверяет наличие grant'а конкретной группы (без учёта регистра).
func hasGroupGrant(acl []searchplatform.ACLEntry, groupID string) bool {
	for _, e := range acl {
		if e.Type == searchplatform.ACLTypeExternalGroup &&
			strings.EqualFold(e.Value, groupID) &&
			e.Access == searchplatform.ACLAccessGrant {
			return true
		}
	}
	return false
}

// removeGroupGrant возвращает ACL без grant'ов указанной группы.
func removeGroupGrant(acl []searchplatform.ACLEntry, groupID string) []searchplatform.ACLEntry {
	out := make([]searchplatform.ACLEntry, 0, len(acl))
	for _, e := range acl {
		if e.Type == searchplatform.ACLTypeExternalGroup && strings.EqualFold(e.Value, groupID) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// countGroupGrants считает разрешающие grant'ы внешних групп в ACL.
func countGroupGrants(acl []searchplatform.ACLEntry) int {
	n := 0
	for _, e := range acl {
		if e.Type == searchplatform.ACLTypeExternalGroup && e.Access == searchplatform.ACLAccessGrant {
			n++
		}
	}
	return n
}

// --- Прочие помощники ---

// appendPool добавляет пул в список, если его там ещё нет.
func appendPool(pools []string, poolID string) []string {
	for _, p := range pools {
		if p == poolID {
			return pools
		}
	}
	return append(pools, poolID)
}

// joinPools сериализует список пулов в значение свойства knowledgePoolIds.
func joinPools(pools []string) string {
	return strings.Join(pools, ";")
}

// truncateDescription обрезает текст до 200 символов, добавляя многоточие
// при усечении. Граница считается в символах, не в байтах.
func truncateDescription(text string) string {
	runes := []rune(text)
	if len(runes) <= maxDescriptionRunes {
		return text
	}
	return string(runes[:maxDescriptionRunes]) + "…"
}
