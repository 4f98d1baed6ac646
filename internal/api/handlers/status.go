// status.go — сводка состояния синхронизации.
// GET /api/v1/status — количество маппингов групп, элементов и членств.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/search-bridge/internal/api/errors"
	"github.com/bigkaa/search-bridge/internal/service"
)

// statusResponse — тело ответа сводки синхронизации.
type statusResponse struct {
	Groups      int                  `json:"groups"`
	Items       int                  `json:"items"`
	Memberships int                  `json:"memberships"`
	LastEvent   *service.EventRecord `json:"lastEvent,omitempty"`
}

// GetStatus возвращает сводку синхронизации из локального хранилища маппингов.
func (h *APIHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	groups, err := h.groups.Count(ctx)
	if err != nil {
		apierrors.InternalError(w, "подсчёт маппингов групп: "+err.Error())
		return
	}
	items, err := h.items.Count(ctx)
	if err != nil {
		apierrors.InternalError(w, "подсчёт маппингов элементов: "+err.Error())
		return
	}
	memberships, err := h.memberships.Count(ctx)
	if err != nil {
		apierrors.InternalError(w, "подсчёт членств: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Groups:      groups,
		Items:       items,
		Memberships: memberships,
		LastEvent:   h.dispatcher.LastEvent(),
	})
}
