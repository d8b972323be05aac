package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ferZyx/ip-cam-monitor/internal/alarm"
	"github.com/ferZyx/ip-cam-monitor/internal/auth"
	"github.com/ferZyx/ip-cam-monitor/internal/store"
	"github.com/ferZyx/ip-cam-monitor/internal/tokens"
)

// Resolver is the resolution entry point the handlers call.
type Resolver interface {
	ResolveRange(ctx context.Context, begin, end time.Time, limit int) ([]*alarm.Event, error)
	ResolveLatest(ctx context.Context, n int) ([]*alarm.Event, error)
}

// HistoryStore serves the persisted alarm history and photos.
type HistoryStore interface {
	ListRecent(ctx context.Context, limit int) ([]store.AlarmRecord, error)
	GetRecord(ctx context.Context, id string) (store.AlarmRecord, error)
	GetPhoto(ctx context.Context, id string) ([]byte, error)
}

type AlarmHandler struct {
	Resolver Resolver
	Store    HistoryStore
	Tokens   *tokens.Manager
	// AdminHash guards mutating endpoints. Empty disables the check,
	// meant for dev only.
	AdminHash string
}

type alarmView struct {
	store.AlarmRecord
	PhotoURL string `json:"photo_url,omitempty"`
}

// ListAlarms GET /api/alarms?limit=N
func (h *AlarmHandler) ListAlarms(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > store.MaxHistory {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := h.Store.ListRecent(r.Context(), limit)
	if err != nil {
		log.Printf("[API] list alarms failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	views := make([]alarmView, 0, len(records))
	for _, rec := range records {
		v := alarmView{AlarmRecord: rec}
		if rec.PhotoBytes > 0 {
			if tok, err := h.Tokens.GeneratePhotoToken(rec.ID); err == nil {
				v.PhotoURL = "/api/alarms/" + rec.ID + "/photo?token=" + tok
			}
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"alarms": views})
}

// GetAlarm GET /api/alarms/{id}
func (h *AlarmHandler) GetAlarm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.Store.GetRecord(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[API] get alarm %s failed: %v", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	v := alarmView{AlarmRecord: rec}
	if rec.PhotoBytes > 0 {
		if tok, err := h.Tokens.GeneratePhotoToken(rec.ID); err == nil {
			v.PhotoURL = "/api/alarms/" + rec.ID + "/photo?token=" + tok
		}
	}
	writeJSON(w, http.StatusOK, v)
}

// GetPhoto GET /api/alarms/{id}/photo?token=...
func (h *AlarmHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tok := r.URL.Query().Get("token")
	if tok == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	if _, err := h.Tokens.ValidatePhotoToken(tok, id); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	photo, err := h.Store.GetPhoto(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "photo not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[API] get photo %s failed: %v", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(photo)
}

type resolveRequest struct {
	Begin  *time.Time `json:"begin"`
	End    *time.Time `json:"end"`
	Latest int        `json:"latest"`
	Limit  int        `json:"limit"`
}

type resolveResponse struct {
	Events   []eventView `json:"events"`
	Resolved int         `json:"resolved"`
	Total    int         `json:"total"`
}

type eventView struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Code       string    `json:"code"`
	Realtime   bool      `json:"realtime"`
	Resolution string    `json:"resolution"`
	Strategy   string    `json:"strategy"`
	Score      float64   `json:"score"`
	Error      string    `json:"error,omitempty"`
}

// Resolve POST /api/resolve: run resolution over a time range or over
// the N most recent alarms. Admin only.
func (h *AlarmHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if !h.checkAdmin(w, r) {
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	var (
		events []*alarm.Event
		err    error
	)
	switch {
	case req.Latest > 0:
		events, err = h.Resolver.ResolveLatest(r.Context(), req.Latest)
	case req.Begin != nil && req.End != nil:
		if !req.End.After(*req.Begin) {
			http.Error(w, "end must be after begin", http.StatusBadRequest)
			return
		}
		events, err = h.Resolver.ResolveRange(r.Context(), *req.Begin, *req.End, req.Limit)
	default:
		http.Error(w, "need latest or begin+end", http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Printf("[API] resolve failed: %v", err)
		http.Error(w, "resolution failed", http.StatusBadGateway)
		return
	}

	resp := resolveResponse{Total: len(events), Events: make([]eventView, 0, len(events))}
	for _, ev := range events {
		if ev.Resolved() {
			resp.Resolved++
		}
		resp.Events = append(resp.Events, eventView{
			ID:         ev.ID.String(),
			Timestamp:  ev.Timestamp,
			Code:       ev.Code,
			Realtime:   ev.Realtime,
			Resolution: string(ev.Resolution),
			Strategy:   ev.Report.Strategy,
			Score:      ev.Report.Score,
			Error:      ev.Report.Error,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AlarmHandler) checkAdmin(w http.ResponseWriter, r *http.Request) bool {
	if h.AdminHash == "" {
		return true
	}
	_, pass, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return false
	}
	match, err := auth.CheckPassword(pass, h.AdminHash)
	if err != nil || !match {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] write response failed: %v", err)
	}
}
