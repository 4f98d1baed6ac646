// Пакет api — HTTP-поверхность Search Bridge: встроенный OpenAPI контракт,
// обработчики и middleware.
package api

import (
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

//go:embed openapi.yaml
var openapiSpec []byte

// LoadContract загружает встроенный OpenAPI контракт и строит роутер
// для валидации входящих запросов.
func LoadContract() (*openapi3.T, routers.Router, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, nil, fmt.Errorf("загрузка OpenAPI контракта: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, nil, fmt.Errorf("валидация OpenAPI контракта: %w", err)
	}

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("построение OpenAPI роутера: %w", err)
	}
	return doc, router, nil
}
