package service

import (
	"context"
	"testing"

	"github.com/bigkaa/search-bridge/internal/searchplatform"
)

// TestEnsureConnectionCreatesWhenAbsent проверяет создание подключения и схемы.
func TestEnsureConnectionCreatesWhenAbsent(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	if err := env.bootstrap.EnsureConnection(ctx); err != nil {
		t.Fatalf("EnsureConnection() вернул ошибку: %v", err)
	}

	if env.gateway.connection == nil {
		t.Error("подключение не создано")
	}
	if env.gateway.schema == nil {
		t.Error("схема не зарегистрирована")
	}
	if env.gateway.schemaUpdates != 1 {
		t.Errorf("schemaUpdates = %d, ожидалось 1", env.gateway.schemaUpdates)
	}
}

// TestEnsureConnectionIdempotent проверяет, что повторный вызов
// не перерегистрирует схему.
func TestEnsureConnectionIdempotent(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := env.bootstrap.EnsureConnection(ctx); err != nil {
			t.Fatalf("EnsureConnection() #%d вернул ошибку: %v", i+1, err)
		}
	}

	if env.gateway.schemaUpdates != 1 {
		t.Errorf("schemaUpdates = %d, ожидалось 1 (актуальная схема не замещается)",
			env.gateway.schemaUpdates)
	}
}

// TestEnsureSchemaReplacesOnMismatch проверяет полную замену расходящейся схемы.
func TestEnsureSchemaReplacesOnMismatch(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	// На платформе устаревшая схема с одним свойством
	env.gateway.schema = &searchplatform.Schema{
		BaseType: "externalItem",
		Properties: []searchplatform.SchemaProperty{
			{Name: "title", Type: "string"},
		},
	}

	if err := env.bootstrap.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() вернул ошибку: %v", err)
	}

	if len(env.gateway.schema.Properties) != 6 {
		t.Errorf("после замены схема содержит %d свойств, ожидалось 6",
			len(env.gateway.schema.Properties))
	}
}

// TestSchemasEqualOrderIndependent проверяет сравнение схем без учёта
// порядка свойств и меток.
func TestSchemasEqualOrderIndependent(t *testing.T) {
	ref := NewDefaultSchema()

	// Переставляем свойства в обратном порядке
	reversed := &searchplatform.Schema{BaseType: ref.BaseType}
	for i := len(ref.Properties) - 1; i >= 0; i-- {
		reversed.Properties = append(reversed.Properties, ref.Properties[i])
	}

	if !schemasEqual(reversed, ref) {
		t.Error("schemasEqual() должна игнорировать порядок свойств")
	}
}

// TestSchemasEqualDetectsFlagChange проверяет чувствительность сравнения
// к флагам свойств.
func TestSchemasEqualDetectsFlagChange(t *testing.T) {
	ref := NewDefaultSchema()
	altered := NewDefaultSchema()
	altered.Properties[0].IsSearchable = !altered.Properties[0].IsSearchable

	if schemasEqual(altered, ref) {
		t.Error("schemasEqual() не заметила изменение флага свойства")
	}
}

// TestSchemasEqualDetectsTypeChange проверяет чувствительность к базовому типу.
func TestSchemasEqualDetectsTypeChange(t *testing.T) {
	ref := NewDefaultSchema()
	altered := NewDefaultSchema()
	altered.BaseType = "other"

	if schemasEqual(altered, ref) {
		t.Error("schemasEqual() не заметила изменение baseType")
	}
}
