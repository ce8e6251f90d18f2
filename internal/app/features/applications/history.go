// internal/app/features/applications/history.go
package applications

import (
	"net/http"
	"strconv"

	uierrors "github.com/dalemusser/bourses/internal/app/features/errors"
	"github.com/dalemusser/bourses/internal/app/store/audit"
	"github.com/dalemusser/bourses/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// ServeHistory handles GET /api/applications/{id}/history, newest first.
// Without a stored audit trail the list is empty.
func (h *Handler) ServeHistory(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		h.ErrLog.Write(w, r, "history: bad id", err)
		return
	}

	limit := int64(defaultHistoryLimit)
	if n, err := strconv.ParseInt(query.Get(r, "limit"), 10, 64); err == nil && n > 0 {
		limit = min(n, maxHistoryLimit)
	}

	events := []audit.Event{}
	if h.History != nil {
		ctx, cancel := h.requestContext(r, timeouts.Short(), "application history")
		defer cancel()

		got, err := h.History.GetByApplication(ctx, id, limit)
		if err != nil {
			h.ErrLog.Write(w, r, "history failed", err)
			return
		}
		if got != nil {
			events = got
		}
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}
