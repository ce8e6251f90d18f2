// internal/app/features/applications/notification.go
package applications

import (
	"io"
	"net/http"

	uierrors "github.com/dalemusser/bourses/internal/app/features/errors"
	"github.com/dalemusser/bourses/internal/app/services/records"
	"github.com/dalemusser/bourses/internal/app/system/limits"
	"github.com/dalemusser/bourses/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// HandleSaveNotification handles PUT /api/applications/{id}/notification.
// It records the decision, archives the letter and mails it.
func (h *Handler) HandleSaveNotification(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		h.ErrLog.Write(w, r, "save notification: bad id", err)
		return
	}

	var in records.NotificationInput
	if err := uierrors.DecodeJSON(w, r, limits.MaxNotificationSize, &in); err != nil {
		h.ErrLog.Write(w, r, "save notification: decode body", err)
		return
	}

	ctx, cancel := h.requestContext(r, timeouts.Long(), "save notification")
	defer cancel()

	v, err := h.Records.SaveNotification(ctx, id, in)
	if err != nil {
		h.ErrLog.Write(w, r, "save notification failed", err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, v)
}

// HandleDeleteNotification handles DELETE /api/applications/{id}/notification.
func (h *Handler) HandleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		h.ErrLog.Write(w, r, "delete notification: bad id", err)
		return
	}

	ctx, cancel := h.requestContext(r, timeouts.Long(), "delete notification")
	defer cancel()

	v, err := h.Records.DeleteNotification(ctx, id)
	if err != nil {
		h.ErrLog.Write(w, r, "delete notification failed", err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, v)
}

// ServeLetter handles GET /api/applications/{id}/notification/letter.
func (h *Handler) ServeLetter(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		h.ErrLog.Write(w, r, "serve letter: bad id", err)
		return
	}

	ctx, cancel := h.requestContext(r, timeouts.Short(), "serve letter")
	defer cancel()

	rc, err := h.Records.Letter(ctx, id)
	if err != nil {
		h.ErrLog.Write(w, r, "serve letter failed", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.Log.Warn("letter copy interrupted", zap.String("application_id", id.Hex()), zap.Error(err))
	}
}
