// validate.go — валидация входящих запросов по OpenAPI контракту.
package middleware

import (
	"errors"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"

	apierrors "github.com/bigkaa/search-bridge/internal/api/errors"
)

// ValidateRequest возвращает middleware, проверяющий тело и параметры
// запроса по OpenAPI контракту. Запросы вне контракта пропускаются
// без проверки (/metrics, /health/*).
func ValidateRequest(router routers.Router) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options: &openapi3filter.Options{
					// Аутентификация — отдельным middleware
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				var reqErr *openapi3filter.RequestError
				if errors.As(err, &reqErr) {
					apierrors.ValidationError(w, reqErr.Error())
					return
				}
				apierrors.ValidationError(w, "запрос не соответствует контракту")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
