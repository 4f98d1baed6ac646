// events.go — приём webhook-событий Rox.
// POST /api/v1/events — одно событие на запрос, обработка синхронная:
// статус ответа отражает фактический результат, 5xx сигнализирует
// источнику о необходимости повторной доставки.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/search-bridge/internal/api/errors"
	"github.com/bigkaa/search-bridge/internal/api/middleware"
	"github.com/bigkaa/search-bridge/internal/service"
)

// eventResult — тело успешного ответа.
type eventResult struct {
	Status string `json:"status"`
}

// PostEvent обрабатывает входящее webhook-событие.
func (h *APIHandler) PostEvent(w http.ResponseWriter, r *http.Request) {
	var ev service.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		apierrors.ValidationError(w, "некорректное тело события: "+err.Error())
		return
	}

	err := h.dispatcher.Dispatch(r.Context(), &ev)
	if err != nil {
		middleware.CountEvent(ev.Type, "error")
		h.logger.Error("Обработка события завершилась ошибкой",
			slog.String("type", ev.Type),
			slog.String("pool_id", ev.PoolID),
			slog.String("file_id", ev.FileID),
			slog.String("error", err.Error()),
		)
		h.writeEventError(w, err)
		return
	}

	middleware.CountEvent(ev.Type, "ok")
	writeJSON(w, http.StatusOK, eventResult{Status: "ok"})
}

// writeEventError отображает ошибку сервисного слоя в HTTP-ответ.
// Валидация и неизвестные события — 400 (повтор бесполезен),
// расхождение состояния — 500, остальное — 502 (источник повторит доставку).
func (h *APIHandler) writeEventError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrUnknownEvent):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrInconsistent):
		apierrors.InconsistentState(w, err.Error())
	default:
		apierrors.PlatformUnavailable(w, err.Error())
	}
}
