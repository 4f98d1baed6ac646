package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bigkaa/search-bridge/internal/domain/ids"
)

// newTestDispatcher собирает диспетчер поверх тестового окружения.
func newTestDispatcher(env *testEnv, roxBaseURL string, client *http.Client) *Dispatcher {
	return NewDispatcher(env.groups, env.items, env.members, roxBaseURL, client, testLogger())
}

// TestDispatchRoutesEvents проверяет маршрутизацию каждого типа события
// в соответствующую операцию ядра.
func TestDispatchRoutesEvents(t *testing.T) {
	env := newTestEnv(t, false)
	d := newTestDispatcher(env, "https://rox.example.com", nil)
	ctx := context.Background()

	steps := []struct {
		name  string
		event Event
		check func(t *testing.T)
	}{
		{
			name:  "pool.created создаёт группу",
			event: Event{Type: EventPoolCreated, PoolID: "kp-123"},
			check: func(t *testing.T) {
				if _, ok := env.gateway.groups[ids.GroupIDFor("kp-123")]; !ok {
					t.Error("группа не создана")
				}
			},
		},
		{
			name:  "file.added создаёт элемент",
			event: Event{Type: EventFileAdded, PoolID: "kp-123", FileID: "file-1", Title: "Test.pdf"},
			check: func(t *testing.T) {
				if _, ok := env.gateway.items[ids.ItemIDFor("file-1")]; !ok {
					t.Error("элемент не создан")
				}
			},
		},
		{
			name:  "member.added добавляет члена",
			event: Event{Type: EventMemberAdded, PoolID: "kp-123", DirectoryGroupID: "dir-1"},
			check: func(t *testing.T) {
				if len(env.gateway.members[ids.GroupIDFor("kp-123")]) != 1 {
					t.Error("член не добавлен")
				}
			},
		},
		{
			name:  "member.removed удаляет члена",
			event: Event{Type: EventMemberRemoved, PoolID: "kp-123", DirectoryGroupID: "dir-1"},
			check: func(t *testing.T) {
				if len(env.gateway.members[ids.GroupIDFor("kp-123")]) != 0 {
					t.Error("член не удалён")
				}
			},
		},
		{
			name:  "file.removed удаляет элемент",
			event: Event{Type: EventFileRemoved, PoolID: "kp-123", FileID: "file-1"},
			check: func(t *testing.T) {
				if _, ok := env.gateway.items[ids.ItemIDFor("file-1")]; ok {
					t.Error("элемент не удалён")
				}
			},
		},
		{
			name:  "pool.removed удаляет группу",
			event: Event{Type: EventPoolRemoved, PoolID: "kp-123"},
			check: func(t *testing.T) {
				if _, ok := env.gateway.groups[ids.GroupIDFor("kp-123")]; ok {
					t.Error("группа не удалена")
				}
			},
		},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			if err := d.Dispatch(ctx, &step.event); err != nil {
				t.Fatalf("Dispatch(%s) вернул ошибку: %v", step.event.Type, err)
			}
			step.check(t)
		})
	}
}

// TestDispatchUnknownEvent проверяет отклонение неизвестного типа события.
func TestDispatchUnknownEvent(t *testing.T) {
	env := newTestEnv(t, false)
	d := newTestDispatcher(env, "https://rox.example.com", nil)

	err := d.Dispatch(context.Background(), &Event{Type: "pool.renamed"})
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("Dispatch() err = %v, ожидалась ErrUnknownEvent", err)
	}
}

// TestDispatchTracksLastEvent проверяет отметку последнего события.
func TestDispatchTracksLastEvent(t *testing.T) {
	env := newTestEnv(t, false)
	d := newTestDispatcher(env, "https://rox.example.com", nil)
	ctx := context.Background()

	if d.LastEvent() != nil {
		t.Error("до первого события LastEvent() должен быть nil")
	}

	if err := d.Dispatch(ctx, &Event{Type: EventPoolCreated, PoolID: "kp-1"}); err != nil {
		t.Fatalf("Dispatch() вернул ошибку: %v", err)
	}
	rec := d.LastEvent()
	if rec == nil || rec.Type != EventPoolCreated || rec.Result != "ok" {
		t.Errorf("LastEvent() = %+v, ожидалось pool.created/ok", rec)
	}
	if rec.Time.IsZero() {
		t.Error("время события не установлено")
	}

	_ = d.Dispatch(ctx, &Event{Type: "pool.renamed"})
	rec = d.LastEvent()
	if rec == nil || rec.Result != "error" {
		t.Errorf("LastEvent() = %+v, ожидался результат error", rec)
	}
}

// TestDispatchDownloadsContent проверяет скачивание содержимого по ссылке
// из события и его попадание в элемент.
func TestDispatchDownloadsContent(t *testing.T) {
	rox := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/file-1/download" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("текст документа"))
	}))
	defer rox.Close()

	env := newTestEnv(t, false)
	// roxBaseURL и для валидации ссылок, и для свойств элементов
	env.items.roxBaseURL = rox.URL
	d := newTestDispatcher(env, rox.URL, rox.Client())

	ev := &Event{
		Type:        EventFileAdded,
		PoolID:      "kp-123",
		FileID:      "file-1",
		Title:       "Test.pdf",
		DownloadURL: rox.URL + "/files/file-1/download",
	}
	if err := d.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("Dispatch() вернул ошибку: %v", err)
	}

	item := env.gateway.items[ids.ItemIDFor("file-1")]
	if item.Content.Value != "текст документа" {
		t.Errorf("содержимое элемента = %q", item.Content.Value)
	}
}

// TestDispatchRejectsForeignDownloadURL проверяет, что ссылка скачивания
// вне базового URL Rox отклоняется до обращения по ней.
func TestDispatchRejectsForeignDownloadURL(t *testing.T) {
	env := newTestEnv(t, false)
	d := newTestDispatcher(env, "https://rox.example.com", nil)

	ev := &Event{
		Type:        EventFileAdded,
		PoolID:      "kp-123",
		FileID:      "file-1",
		Title:       "Test.pdf",
		DownloadURL: "https://evil.example.com/payload",
	}
	err := d.Dispatch(context.Background(), ev)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Dispatch() err = %v, ожидалась ErrValidation", err)
	}
	if len(env.gateway.items) != 0 {
		t.Error("элемент создан, несмотря на отклонённую ссылку")
	}
}

// TestDispatchDownloadErrorPropagates проверяет, что сбой скачивания
// прерывает обработку события.
func TestDispatchDownloadErrorPropagates(t *testing.T) {
	rox := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer rox.Close()

	env := newTestEnv(t, false)
	d := newTestDispatcher(env, rox.URL, rox.Client())

	ev := &Event{
		Type:        EventFileAdded,
		PoolID:      "kp-123",
		FileID:      "file-1",
		DownloadURL: rox.URL + "/files/file-1/download",
	}
	if err := d.Dispatch(context.Background(), ev); err == nil {
		t.Fatal("Dispatch() при сбое скачивания должен вернуть ошибку")
	}
}
