package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/search-bridge/internal/domain/model"
)

// Типы входящих событий Rox.
const (
	EventPoolCreated   = "pool.created"
	EventPoolRemoved   = "pool.removed"
	EventFileAdded     = "file.added"
	EventFileRemoved   = "file.removed"
	EventFileUpdated   = "file.updated"
	EventMemberAdded   = "member.added"
	EventMemberRemoved = "member.removed"
)

// Event — конверт webhook-события Rox. Каждое событие отображается ровно
// на одну операцию ядра.
type Event struct {
	Type             string `json:"type"`
	PoolID           string `json:"poolId,omitempty"`
	FileID           string `json:"fileId,omitempty"`
	Title            string `json:"title,omitempty"`
	DownloadURL      string `json:"downloadUrl,omitempty"`
	DirectoryGroupID string `json:"directoryGroupId,omitempty"`
}

// EventRecord — отметка о последнем обработанном событии.
type EventRecord struct {
	Type   string    `json:"type"`
	Time   time.Time `json:"time"`
	Result string    `json:"result"` // "ok" или "error"
}

// Dispatcher направляет входящие события в сервисы ядра и скачивает
// содержимое файлов по ссылкам из событий.
type Dispatcher struct {
	groups     *GroupService
	items      *ItemService
	members    *MemberService
	roxBaseURL string
	httpClient *http.Client
	logger     *slog.Logger

	mu   sync.Mutex
	last *EventRecord
}

// NewDispatcher создаёт диспетчер событий.
func NewDispatcher(
	groups *GroupService,
	items *ItemService,
	members *MemberService,
	roxBaseURL string,
	httpClient *http.Client,
	logger *slog.Logger,
) *Dispatcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Dispatcher{
		groups:     groups,
		items:      items,
		members:    members,
		roxBaseURL: roxBaseURL,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "dispatcher")),
	}
}

// Dispatch выполняет операцию ядра, соответствующую типу события.
// Событие обрабатывается целиком до возврата: фоновых воркеров нет,
// ответ webhook-источнику отражает фактический результат.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event) error {
	d.logger.Debug("Обработка события",
		slog.String("type", ev.Type),
		slog.String("pool_id", ev.PoolID),
		slog.String("file_id", ev.FileID))

	err := d.dispatch(ctx, ev)
	d.recordEvent(ev.Type, err)
	return err
}

// LastEvent возвращает отметку последнего обработанного события
// или nil, если событий ещё не было.
func (d *Dispatcher) LastEvent() *EventRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return nil
	}
	rec := *d.last
	return &rec
}

func (d *Dispatcher) recordEvent(eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	d.mu.Lock()
	d.last = &EventRecord{Type: eventType, Time: time.Now().UTC(), Result: result}
	d.mu.Unlock()
}

func (d *Dispatcher) dispatch(ctx context.Context, ev *Event) error {
	switch ev.Type {
	case EventPoolCreated:
		_, err := d.groups.EnsureGroup(ctx, ev.PoolID)
		return err

	case EventPoolRemoved:
		return d.groups.RemoveGroup(ctx, ev.PoolID)

	case EventFileAdded:
		file, closeFn, err := d.buildSyncFile(ctx, ev)
		if err != nil {
			return err
		}
		defer closeFn()
		return d.items.AttachFile(ctx, ev.PoolID, file)

	case EventFileRemoved:
		return d.items.DetachFile(ctx, ev.PoolID, ev.FileID)

	case EventFileUpdated:
		file, closeFn, err := d.buildSyncFile(ctx, ev)
		if err != nil {
			return err
		}
		defer closeFn()
		return d.items.UpdateFile(ctx, file)

	case EventMemberAdded:
		return d.members.AddMember(ctx, ev.PoolID, ev.DirectoryGroupID)

	case EventMemberRemoved:
		return d.members.RemoveMember(ctx, ev.PoolID, ev.DirectoryGroupID)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
}

// buildSyncFile собирает файл для движка сверки. Если событие содержит
// ссылку на содержимое, она проверяется и скачивается; поток передаётся
// движку как есть, без буферизации целиком.
func (d *Dispatcher) buildSyncFile(ctx context.Context, ev *Event) (*model.SyncFile, func(), error) {
	file := &model.SyncFile{
		ID:    ev.FileID,
		Title: ev.Title,
	}

	if ev.DownloadURL == "" {
		return file, func() {}, nil
	}

	body, err := d.downloadContent(ctx, ev.DownloadURL)
	if err != nil {
		return nil, nil, err
	}
	file.Content = body
	return file, func() { _ = body.Close() }, nil
}

// downloadContent скачивает содержимое файла. Принимаются только ссылки
// внутри настроенного базового URL Rox: событие не может увести bridge
// на произвольный адрес.
func (d *Dispatcher) downloadContent(ctx context.Context, downloadURL string) (io.ReadCloser, error) {
	if !strings.HasPrefix(downloadURL, d.roxBaseURL+"/") {
		return nil, fmt.Errorf("%w: ссылка скачивания %q вне базового URL Rox",
			ErrValidation, downloadURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса скачивания: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("скачивание содержимого: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("скачивание содержимого: статус %d", resp.StatusCode)
	}

	return resp.Body, nil
}
