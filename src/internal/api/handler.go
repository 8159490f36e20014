package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/repo-radar/radar-service/src/internal/api/apiErrors"
	"github.com/repo-radar/radar-service/src/internal/githubmeta"
	"github.com/repo-radar/radar-service/src/internal/model"
	"github.com/repo-radar/radar-service/src/internal/service"

	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc  *service.Service
	meta *githubmeta.Client
	log  *zap.Logger
}

func NewHandler(svc *service.Service, meta *githubmeta.Client, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, meta: meta, log: logger}
}

func RegisterRoutes(r *chi.Mux, h *Handler) {
	r.Get("/radars", withTimeout(h.listRadars))
	r.Post("/radars", withTimeout(h.createRadar))
	r.Post("/radars/rename", withTimeout(h.renameRadar))
	r.Post("/radars/delete", withTimeout(h.deleteRadar))
	r.Post("/memberships/add", withTimeout(h.addMembership))
	r.Post("/memberships/remove", withTimeout(h.removeMembership))
	r.Get("/memberships/radarsContaining", withTimeout(h.radarsContaining))
	r.Get("/repos/meta", withTimeout(h.repoMeta))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
}

func withTimeout(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}

func (h *Handler) listRadars(w http.ResponseWriter, r *http.Request) {
	radars, err := h.svc.ListRadars(r.Context())
	if err != nil {
		handleSvcError(w, err)
		return
	}
	if radars == nil {
		radars = []model.RadarWithCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"radars": radars})
}

func (h *Handler) createRadar(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apiErrors.ValidationError, "invalid body", 0)
		return
	}
	radar, err := h.svc.CreateRadar(r.Context(), req.Name)
	if err != nil {
		handleSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"radar": radar})
}

func (h *Handler) renameRadar(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RadarID string `json:"radar_id"`
		Name    string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RadarID == "" {
		writeError(w, http.StatusBadRequest, apiErrors.ValidationError, "radar_id required", 0)
		return
	}
	radar, err := h.svc.RenameRadar(r.Context(), req.RadarID, req.Name)
	if err != nil {
		handleSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"radar": radar})
}

func (h *Handler) deleteRadar(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RadarID string `json:"radar_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RadarID == "" {
		writeError(w, http.StatusBadRequest, apiErrors.ValidationError, "radar_id required", 0)
		return
	}
	if err := h.svc.DeleteRadar(r.Context(), req.RadarID); err != nil {
		handleSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": req.RadarID})
}

type membershipRequest struct {
	RadarID string `json:"radar_id"`
	RepoID  int64  `json:"repo_id"`
}

func (h *Handler) addMembership(w http.ResponseWriter, r *http.Request) {
	var req membershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RadarID == "" || req.RepoID == 0 {
		writeError(w, http.StatusBadRequest, apiErrors.ValidationError, "radar_id and repo_id required", 0)
		return
	}
	m, err := h.svc.AddMembership(r.Context(), req.RadarID, req.RepoID)
	if err != nil {
		handleSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"membership": m})
}

func (h *Handler) removeMembership(w http.ResponseWriter, r *http.Request) {
	var req membershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RadarID == "" || req.RepoID == 0 {
		writeError(w, http.StatusBadRequest, apiErrors.ValidationError, "radar_id and repo_id required", 0)
		return
	}
	if err := h.svc.RemoveMembership(r.Context(), req.RadarID, req.RepoID); err != nil {
		handleSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": true})
}

func (h *Handler) radarsContaining(w http.ResponseWriter, r *http.Request) {
	repoID, err := strconv.ParseInt(r.URL.Query().Get("repo_id"), 10, 64)
	if err != nil || repoID == 0 {
		writeError(w, http.StatusBadRequest, apiErrors.ValidationError, "repo_id required", 0)
		return
	}
	radarIDs, err := h.svc.RadarsContaining(r.Context(), repoID)
	if err != nil {
		handleSvcError(w, err)
		return
	}
	if radarIDs == nil {
		radarIDs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"repo_id": repoID, "radar_ids": radarIDs})
}

func (h *Handler) repoMeta(w http.ResponseWriter, r *http.Request) {
	repoID, err := strconv.ParseInt(r.URL.Query().Get("repo_id"), 10, 64)
	if err != nil || repoID == 0 {
		writeError(w, http.StatusBadRequest, apiErrors.ValidationError, "repo_id required", 0)
		return
	}
	meta, err := h.meta.GetByID(r.Context(), repoID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, apiErrors.NotFound, "repository not found", 0)
			return
		}
		handleSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, errCode apiErrors.ErrorCode, message string, limit int) {
	body := map[string]any{"code": errCode, "message": message}
	if limit > 0 {
		body["limit"] = limit
	}
	writeJSON(w, code, map[string]any{"error": body})
}

func handleSvcError(w http.ResponseWriter, err error) {
	var e apiErrors.APIError
	switch {
	case errors.As(err, &e):
		switch e.Code {
		case apiErrors.ValidationError:
			writeError(w, http.StatusBadRequest, e.Code, e.Message, e.Limit)
		case apiErrors.AuthRequired:
			writeError(w, http.StatusUnauthorized, e.Code, e.Message, e.Limit)
		case apiErrors.NotFound:
			writeError(w, http.StatusNotFound, e.Code, e.Message, e.Limit)
		case apiErrors.DuplicateMembership:
			writeError(w, http.StatusConflict, e.Code, e.Message, e.Limit)
		case apiErrors.RadarLimitExceeded, apiErrors.RepoLimitExceeded, apiErrors.TotalLimitExceeded:
			writeError(w, http.StatusConflict, e.Code, e.Message, e.Limit)
		default:
			writeError(w, http.StatusInternalServerError, apiErrors.InternalError, e.Message, 0)
		}
	default:
		writeError(w, http.StatusInternalServerError, apiErrors.InternalError, err.Error(), 0)
	}
}
