package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/search-bridge/internal/searchplatform"
)

// BootstrapService обеспечивает существование подключения и схемы элементов
// на поисковой платформе. Платформа отказывает в записи элементов до
// регистрации схемы, поэтому bootstrap выполняется до любого upsert.
type BootstrapService struct {
	gateway      Gateway
	connectionID string
	schema       *searchplatform.Schema
	logger       *slog.Logger
}

// NewBootstrapService создаёт сервис bootstrap подключения.
func NewBootstrapService(gateway Gateway, connectionID string, logger *slog.Logger) *BootstrapService {
	return &BootstrapService{
		gateway:      gateway,
		connectionID: connectionID,
		schema:       NewDefaultSchema(),
		logger:       logger.With(slog.String("component", "bootstrap_service")),
	}
}

// NewDefaultSchema строит эталонную схему элементов подключения.
// Схема неизменяемая: строится один раз при создании сервиса.
func NewDefaultSchema() *searchplatform.Schema {
	return &searchplatform.Schema{
		BaseType: "externalItem",
		Properties: []searchplatform.SchemaProperty{
			{
				Name:          "title",
				Type:          "string",
				IsSearchable:  true,
				IsQueryable:   true,
				IsRetrievable: true,
				Labels:        []string{"title"},
			},
			{
				Name:          "url",
				Type:          "string",
				IsRetrievable: true,
				Labels:        []string{"url"},
			},
			{
				Name:          "roxFileId",
				Type:          "string",
				IsQueryable:   true,
				IsRetrievable: true,
			},
			{
				Name:          "iconUrl",
				Type:          "string",
				IsRetrievable: true,
				Labels:        []string{"iconUrl"},
			},
			{
				Name:          "knowledgePoolIds",
				Type:          "string",
				IsQueryable:   true,
				IsRetrievable: true,
			},
			{
				Name:          "description",
				Type:          "string",
				IsSearchable:  true,
				IsRetrievable: true,
			},
		},
	}
}

// EnsureConnection проверяет существование подключения и создаёт его при
// отсутствии. Конкурентное создание ("уже существует") считается успехом.
// После проверки всегда вызывается EnsureSchema.
func (s *BootstrapService) EnsureConnection(ctx context.Context) error {
	_, err := s.gateway.GetConnection(ctx)
	switch {
	case err == nil:
		// Подключение существует
	case errors.Is(err, searchplatform.ErrNotFound):
		s.logger.Info("Подключение отсутствует, создаём",
			slog.String("connection_id", s.connectionID))

		createErr := s.gateway.CreateConnection(ctx,
			"Rox Search Bridge",
			"Индекс пулов знаний Rox, синхронизируется автоматически")
		if createErr != nil && !errors.Is(createErr, searchplatform.ErrConflict) {
			return fmt.Errorf("создание подключения: %w", createErr)
		}
		if errors.Is(createErr, searchplatform.ErrConflict) {
			s.logger.Debug("Подключение создано конкурентно, продолжаем")
		}
	default:
		return fmt.Errorf("проверка подключения: %w", err)
	}

	return s.EnsureSchema(ctx)
}

// EnsureSchema сравнивает текущую схему подключения с эталонной и при
// расхождении полностью заменяет её. Сравнение не зависит от порядка
// свойств и меток.
func (s *BootstrapService) EnsureSchema(ctx context.Context) error {
	current, err := s.gateway.GetSchema(ctx)
	switch {
	case err == nil:
		if schemasEqual(current, s.schema) {
			s.logger.Debug("Схема подключения актуальна")
			return nil
		}
		s.logger.Info("Схема подключения расходится с эталонной, заменяем")
	case errors.Is(err, searchplatform.ErrNotFound):
		s.logger.Info("Схема подключения отсутствует, регистрируем")
	default:
		return fmt.Errorf("получение схемы: %w", err)
	}

	if err := s.gateway.UpdateSchema(ctx, s.schema); err != nil {
		if errors.Is(err, searchplatform.ErrConflict) {
			s.logger.Debug("Схема зарегистрирована конкурентно, продолжаем")
			return nil
		}
		return fmt.Errorf("регистрация схемы: %w", err)
	}

	s.logger.Info("Схема подключения зарегистрирована",
		slog.Int("properties", len(s.schema.Properties)))
	return nil
}

// schemasEqual сравнивает две схемы без учёта порядка свойств и меток.
func schemasEqual(a, b *searchplatform.Schema) bool {
	if a.BaseType != b.BaseType || len(a.Properties) != len(b.Properties) {
		return false
	}

	byName := make(map[string]searchplatform.SchemaProperty, len(a.Properties))
	for _, p := range a.Properties {
		byName[p.Name] = p
	}

	for _, want := range b.Properties {
		got, ok := byName[want.Name]
		if !ok {
			return false
		}
		if got.Type != want.Type ||
			got.IsSearchable != want.IsSearchable ||
			got.IsQueryable != want.IsQueryable ||
			got.IsRetrievable != want.IsRetrievable {
			return false
		}
		if !labelsEqual(got.Labels, want.Labels) {
			return false
		}
	}
	return true
}

// labelsEqual сравнивает наборы меток как множества.
func labelsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, l := range a {
		set[l] = true
	}
	for _, l := range b {
		if !set[l] {
			return false
		}
	}
	return true
}
