// internal/app/features/applications/list.go
package applications

import (
	"context"
	"net/http"
	"strconv"

	uierrors "github.com/dalemusser/bourses/internal/app/features/errors"
	"github.com/dalemusser/bourses/internal/app/services/records"
	applicationstore "github.com/dalemusser/bourses/internal/app/store/applications"
	"github.com/dalemusser/bourses/internal/app/system/paging"
	"github.com/dalemusser/bourses/internal/app/system/timeouts"
	"github.com/dalemusser/bourses/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type listResponse struct {
	Applications []records.View `json:"applications"`
	Page         paging.Result  `json:"page"`
}

// ServeList handles GET /api/institutions/{id}/applications.
//
// Query parameters: status (new selects new and pending), paid (only
// positive decisions), sort (createdAt, status, amount), reverse, offset,
// limit.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	instID, err := objectID(r, "id")
	if err != nil {
		h.ErrLog.Write(w, r, "list applications: bad institution id", err)
		return
	}

	win := paging.ParseWindow(r)
	reverse, _ := strconv.ParseBool(query.Get(r, "reverse"))
	paid, _ := strconv.ParseBool(query.Get(r, "paid"))
	opts := records.ListOptions{
		Status:  models.Status(query.Get(r, "status")),
		Paid:    paid,
		Sort:    applicationstore.ParseSort(query.Get(r, "sort")),
		Reverse: reverse,
		Offset:  int64(win.Offset),
		Limit:   int64(win.LimitPlusOne()),
	}

	ctx, cancel := h.requestContext(r, timeouts.Medium(), "list applications")
	defer cancel()

	views, err := h.Records.List(ctx, instID, opts)
	if err != nil {
		h.ErrLog.Write(w, r, "list applications failed", err)
		return
	}
	page := paging.TrimPage(&views, win)

	uierrors.WriteJSON(w, http.StatusOK, listResponse{Applications: views, Page: page})
}

type setResponse struct {
	Applications []records.View `json:"applications"`
}

// ServeAccounting handles GET /api/institutions/{id}/applications/accounting.
func (h *Handler) ServeAccounting(w http.ResponseWriter, r *http.Request) {
	h.serveSet(w, r, "accounting", h.Records.Accounting)
}

// ServeWrongYear handles GET /api/institutions/{id}/applications/wrong-year.
func (h *Handler) ServeWrongYear(w http.ResponseWriter, r *http.Request) {
	h.serveSet(w, r, "wrong year", h.Records.WrongYear)
}

func (h *Handler) serveSet(w http.ResponseWriter, r *http.Request, op string, fetch func(context.Context, primitive.ObjectID) ([]records.View, error)) {
	instID, err := objectID(r, "id")
	if err != nil {
		h.ErrLog.Write(w, r, op+": bad institution id", err)
		return
	}

	ctx, cancel := h.requestContext(r, timeouts.Medium(), op)
	defer cancel()

	views, err := fetch(ctx, instID)
	if err != nil {
		h.ErrLog.Write(w, r, op+" failed", err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, setResponse{Applications: views})
}

// ServeCounts handles GET /api/institutions/{id}/applications/counts.
func (h *Handler) ServeCounts(w http.ResponseWriter, r *http.Request) {
	instID, err := objectID(r, "id")
	if err != nil {
		h.ErrLog.Write(w, r, "count applications: bad institution id", err)
		return
	}

	ctx, cancel := h.requestContext(r, timeouts.Short(), "count applications")
	defer cancel()

	counts, err := h.Records.Counts(ctx, instID)
	if err != nil {
		h.ErrLog.Write(w, r, "count applications failed", err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, counts)
}
