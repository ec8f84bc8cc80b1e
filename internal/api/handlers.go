// ABOUTME: Request handlers translating HTTP calls into service operations
// ABOUTME: Maps invalid requests to 400 and missing records to 404
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/harper/twin/internal/models"
	"github.com/harper/twin/internal/service"
	"github.com/harper/twin/internal/storage"
)

type handler struct {
	svc    *service.Service
	logger zerolog.Logger
}

type routeRequest struct {
	Message string `json:"message"`
}

type stateExampleResponse struct {
	StateStructure models.TurnSnapshot `json:"state_structure"`
	Note           string              `json:"note"`
}

func (h *handler) chat(w http.ResponseWriter, r *http.Request) {
	var req service.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.svc.Chat(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *handler) route(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.svc.Route(r.Context(), req.Message)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *handler) listConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	convs, err := h.svc.ListConversations(r.Context(), q.Get("user_id"), limit, offset)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"conversations": convs,
		"count":         len(convs),
	})
}

func (h *handler) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.svc.GetConversation(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

func (h *handler) deleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteConversation(r.Context(), chi.URLParam(r, "conversationID")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) stateExample(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, stateExampleResponse{
		StateStructure: service.ExampleState().Snapshot(),
		Note:           service.ExampleNote,
	})
}

func (h *handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}
