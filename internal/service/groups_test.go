package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bigkaa/search-bridge/internal/domain/ids"
	"github.com/bigkaa/search-bridge/internal/domain/model"
	"github.com/bigkaa/search-bridge/internal/searchplatform"
)

// TestEnsureGroupCreatesMapping проверяет создание группы и маппинга.
func TestEnsureGroupCreatesMapping(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	mapping, err := env.groups.EnsureGroup(ctx, "kp-123")
	if err != nil {
		t.Fatalf("EnsureGroup() вернул ошибку: %v", err)
	}

	wantGroupID := ids.GroupIDFor("kp-123")
	if mapping.GroupID != wantGroupID {
		t.Errorf("GroupID = %q, ожидалось %q", mapping.GroupID, wantGroupID)
	}
	if _, ok := env.gateway.groups[wantGroupID]; !ok {
		t.Error("внешняя группа не создана на платформе")
	}
}

// TestEnsureGroupIdempotent проверяет, что повторный вызов не создаёт
// дубликат группы.
func TestEnsureGroupIdempotent(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	first, err := env.groups.EnsureGroup(ctx, "kp-123")
	if err != nil {
		t.Fatalf("первый EnsureGroup() вернул ошибку: %v", err)
	}
	second, err := env.groups.EnsureGroup(ctx, "kp-123")
	if err != nil {
		t.Fatalf("второй EnsureGroup() вернул ошибку: %v", err)
	}

	if first.GroupID != second.GroupID {
		t.Errorf("повторный вызов вернул другой GroupID: %q != %q",
			first.GroupID, second.GroupID)
	}
	if env.gateway.groupCreates != 1 {
		t.Errorf("groupCreates = %d, ожидалось 1", env.gateway.groupCreates)
	}
	if n, _ := env.store.Count(ctx); n != 1 {
		t.Errorf("маппингов групп %d, ожидался 1", n)
	}
}

// TestEnsureGroupToleratesPlatformConflict проверяет, что конкурентное
// создание группы на платформе считается успехом.
func TestEnsureGroupToleratesPlatformConflict(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	// Группа уже существует на платформе, маппинга нет (повтор после падения)
	groupID := ids.GroupIDFor("kp-123")
	env.gateway.groups[groupID] = searchplatform.ExternalGroup{ID: groupID}

	mapping, err := env.groups.EnsureGroup(ctx, "kp-123")
	if err != nil {
		t.Fatalf("EnsureGroup() при существующей группе вернул ошибку: %v", err)
	}
	if mapping.GroupID != groupID {
		t.Errorf("GroupID = %q, ожидалось %q", mapping.GroupID, groupID)
	}
}

// TestEnsureGroupEmptyPoolID проверяет валидацию пустого poolId.
func TestEnsureGroupEmptyPoolID(t *testing.T) {
	env := newTestEnv(t, false)

	_, err := env.groups.EnsureGroup(context.Background(), "")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("EnsureGroup(\"\") err = %v, ожидалась ErrValidation", err)
	}
}

// TestRemoveGroupCascade проверяет удаление пула: N файлов отвязаны,
// группа удалена, членств пула не осталось.
func TestRemoveGroupCascade(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	// Три файла в пуле
	files := []string{"file-1", "file-2", "file-3"}
	for _, fileID := range files {
		err := env.items.AttachFile(ctx, "kp-123", &model.SyncFile{ID: fileID, Title: fileID + ".pdf"})
		if err != nil {
			t.Fatalf("AttachFile(%s) вернул ошибку: %v", fileID, err)
		}
	}

	if err := env.groups.RemoveGroup(ctx, "kp-123"); err != nil {
		t.Fatalf("RemoveGroup() вернул ошибку: %v", err)
	}

	// Группа удалена с платформы
	groupID := ids.GroupIDFor("kp-123")
	if _, ok := env.gateway.groups[groupID]; ok {
		t.Error("внешняя группа не удалена с платформы")
	}
	// Маппинг группы удалён
	if _, err := env.store.GetByPoolID(ctx, "kp-123"); err == nil {
		t.Error("маппинг группы не удалён")
	}
	// Членств пула не осталось
	remaining, _ := env.mbrRepo.ListFilesByPool(ctx, "kp-123")
	if len(remaining) != 0 {
		t.Errorf("осталось %d членств пула, ожидалось 0", len(remaining))
	}
	// Все элементы удалены (пул был единственным для каждого файла)
	if len(env.gateway.items) != 0 {
		t.Errorf("на платформе осталось %d элементов, ожидалось 0", len(env.gateway.items))
	}
	if len(env.gateway.itemDeletes) != len(files) {
		t.Errorf("удалений элементов %d, ожидалось %d",
			len(env.gateway.itemDeletes), len(files))
	}
}

// TestRemoveGroupKeepsSharedItems проверяет, что файл, состоящий ещё
// в одном пуле, при удалении пула не удаляется с платформы.
func TestRemoveGroupKeepsSharedItems(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	file := &model.SyncFile{ID: "file-1", Title: "Shared.pdf"}
	if err := env.items.AttachFile(ctx, "kp-a", file); err != nil {
		t.Fatalf("AttachFile(kp-a) вернул ошибку: %v", err)
	}
	if err := env.items.AttachFile(ctx, "kp-b", file); err != nil {
		t.Fatalf("AttachFile(kp-b) вернул ошибку: %v", err)
	}

	if err := env.groups.RemoveGroup(ctx, "kp-a"); err != nil {
		t.Fatalf("RemoveGroup(kp-a) вернул ошибку: %v", err)
	}

	itemID := ids.ItemIDFor("file-1")
	item, ok := env.gateway.items[itemID]
	if !ok {
		t.Fatal("элемент удалён, хотя файл остаётся в пуле kp-b")
	}
	if !hasGroupGrant(item.ACL, ids.GroupIDFor("kp-b")) {
		t.Error("grant группы kp-b потерян")
	}
	if hasGroupGrant(item.ACL, ids.GroupIDFor("kp-a")) {
		t.Error("grant удалённой группы kp-a остался в ACL")
	}
}

// TestRemoveGroupRetryAfterPartialFailure проверяет, что повторный вызов
// завершает сагу, даже если маппинг группы уже удалён.
func TestRemoveGroupRetryAfterPartialFailure(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	if _, err := env.groups.EnsureGroup(ctx, "kp-123"); err != nil {
		t.Fatalf("EnsureGroup() вернул ошибку: %v", err)
	}

	// Имитация падения: маппинг удалён, группа на платформе осталась
	if err := env.store.Delete(ctx, "kp-123"); err != nil {
		t.Fatalf("удаление маппинга: %v", err)
	}

	if err := env.groups.RemoveGroup(ctx, "kp-123"); err != nil {
		t.Fatalf("повторный RemoveGroup() вернул ошибку: %v", err)
	}

	groupID := ids.GroupIDFor("kp-123")
	if _, ok := env.gateway.groups[groupID]; ok {
		t.Error("группа не удалена при повторе с выведенным заново идентификатором")
	}
}

// TestRemoveGroupIdempotent проверяет, что удаление уже удалённого пула
// проходит без ошибки.
func TestRemoveGroupIdempotent(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	if _, err := env.groups.EnsureGroup(ctx, "kp-123"); err != nil {
		t.Fatalf("EnsureGroup() вернул ошибку: %v", err)
	}
	if err := env.groups.RemoveGroup(ctx, "kp-123"); err != nil {
		t.Fatalf("первый RemoveGroup() вернул ошибку: %v", err)
	}
	if err := env.groups.RemoveGroup(ctx, "kp-123"); err != nil {
		t.Fatalf("повторный RemoveGroup() вернул ошибку: %v", err)
	}
}

// TestResolveGroupIDWithoutMapping проверяет вывод идентификатора группы
// без строки маппинга.
func TestResolveGroupIDWithoutMapping(t *testing.T) {
	env := newTestEnv(t, false)

	got := env.groups.ResolveGroupID(context.Background(), "kp-123")
	want := ids.GroupIDFor("kp-123")
	if got != want {
		t.Errorf("ResolveGroupID() = %q, ожидалось %q", got, want)
	}
}
