package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fusetalk/fusetalk-server/internal/middleware"
	"github.com/fusetalk/fusetalk-server/internal/service"
)

type FuseHandler struct {
	fuseService *service.FuseService
}

func NewFuseHandler(fuseService *service.FuseService) *FuseHandler {
	return &FuseHandler{fuseService: fuseService}
}

func (h *FuseHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/{momentID}/share-contact", h.ShareContact)

	return r
}

// GET /api/fuse-moments
func (h *FuseHandler) List(w http.ResponseWriter, r *http.Request) {
	page := parsePage(r)

	views, total, err := h.fuseService.List(r.Context(), middleware.GetUser(r.Context()), page.Limit, page.Offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pageOf(page, views, total))
}

// POST /api/fuse-moments/{momentID}/share-contact
func (h *FuseHandler) ShareContact(w http.ResponseWriter, r *http.Request) {
	var info service.ContactInfo
	if err := decodeJSON(r, &info); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.fuseService.ShareContact(r.Context(), middleware.GetUser(r.Context()), chi.URLParam(r, "momentID"), info); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"message": "Contact shared successfully"})
}
