package trophyhandlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	trophyservice "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/application"
	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
	trophyauth "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/auth"
	trophyexport "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/export"
	"github.com/Black-And-White-Club/trophy-bot/app/observability/attr"
	"github.com/go-chi/chi/v5"
)

const (
	maxRequestBytes  = 1 << 16
	defaultListLimit = 20
	defaultChartTop  = 10
	maxChartTop      = 50
)

// TrophyHandlers translates HTTP requests into trophy service calls.
type TrophyHandlers struct {
	service trophyservice.Service
	tokens  trophyauth.Provider
	logger  *slog.Logger
}

// NewTrophyHandlers creates the handlers. A nil tokens provider leaves the
// admin routes unauthenticated.
func NewTrophyHandlers(service trophyservice.Service, tokens trophyauth.Provider, logger *slog.Logger) *TrophyHandlers {
	return &TrophyHandlers{service: service, tokens: tokens, logger: logger}
}

// Routes mounts the public and admin endpoints under a fresh router.
func (h *TrophyHandlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/leaderboard", h.GetLeaderboard)
	r.Get("/leaderboard/chart.png", h.GetLeaderboardChart)
	r.Post("/players", h.LinkPlayer)
	r.Delete("/players/{ownerID}", h.UnlinkPlayer)

	r.Route("/admin", func(r chi.Router) {
		if h.tokens != nil {
			r.Use(RequireRole(h.tokens, trophyauth.RoleAdmin))
		}
		r.Delete("/players/{tag}", h.RemovePlayer)
		r.Post("/reset", h.ForceReset)
		r.Post("/reconcile", h.Reconcile)
		r.Get("/backups", h.ListBackups)
		r.Post("/backups", h.CreateBackup)
		r.Get("/backups/{id}", h.GetBackup)
		r.Post("/backups/{id}/restore", h.RestoreBackup)
		r.Get("/backups/{id}/export", h.ExportBackup)
	})
	return r
}

// LinkPlayer handles POST /players.
func (h *TrophyHandlers) LinkPlayer(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required", "")
		return
	}

	res, err := h.service.LinkPlayer(r.Context(), trophydomain.OwnerID(req.OwnerID), req.Tag)
	if err != nil {
		h.fail(w, r, "LinkPlayer", err)
		return
	}

	status := http.StatusCreated
	if res.Relinked {
		status = http.StatusOK
	}
	writeJSON(w, status, linkResponse{Player: toPlayerResponse(res.Player), Relinked: res.Relinked})
}

// UnlinkPlayer handles DELETE /players/{ownerID}?tag=.
func (h *TrophyHandlers) UnlinkPlayer(w http.ResponseWriter, r *http.Request) {
	owner := trophydomain.OwnerID(chi.URLParam(r, "ownerID"))
	removed, err := h.service.UnlinkPlayer(r.Context(), owner, r.URL.Query().Get("tag"))
	if err != nil {
		h.fail(w, r, "UnlinkPlayer", err)
		return
	}
	writeJSON(w, http.StatusOK, unlinkResponse{Removed: removed})
}

// RemovePlayer handles DELETE /admin/players/{tag}.
func (h *TrophyHandlers) RemovePlayer(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemovePlayer(r.Context(), chi.URLParam(r, "tag")); err != nil {
		h.fail(w, r, "RemovePlayer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetLeaderboard handles GET /leaderboard?min_score=&name=&page=&page_size=.
func (h *TrophyHandlers) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minScore, err := intParam(q.Get("min_score"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid min_score", "")
		return
	}
	page, err := intParam(q.Get("page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid page", "")
		return
	}
	pageSize, err := intParam(q.Get("page_size"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid page_size", "")
		return
	}

	res, err := h.service.GetLeaderboard(r.Context(), trophyservice.LeaderboardQuery{
		MinScore:     minScore,
		NameContains: q.Get("name"),
		Page:         page,
		PageSize:     pageSize,
	})
	if err != nil {
		h.fail(w, r, "GetLeaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaderboardResponse(res))
}

// GetLeaderboardChart handles GET /leaderboard/chart.png?top=.
func (h *TrophyHandlers) GetLeaderboardChart(w http.ResponseWriter, r *http.Request) {
	top, err := intParam(r.URL.Query().Get("top"))
	if err != nil || top < 0 || top > maxChartTop {
		writeError(w, http.StatusBadRequest, "invalid top", "")
		return
	}
	if top == 0 {
		top = defaultChartTop
	}

	players, err := h.service.ListPlayers(r.Context())
	if err != nil {
		h.fail(w, r, "GetLeaderboardChart", err)
		return
	}
	img, err := trophyexport.LeaderboardChartPNG(trophyexport.TopPlayers(players, top))
	if err != nil {
		h.fail(w, r, "GetLeaderboardChart", err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

// ForceReset handles POST /admin/reset?backup=true.
func (h *TrophyHandlers) ForceReset(w http.ResponseWriter, r *http.Request) {
	withBackup := false
	if v := r.URL.Query().Get("backup"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid backup flag", "")
			return
		}
		withBackup = b
	}

	res, err := h.service.ForceReset(r.Context(), withBackup)
	if err != nil {
		h.fail(w, r, "ForceReset", err)
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{Date: string(res.Date), Reset: res.Reset, BackupID: res.BackupID})
}

// Reconcile handles POST /admin/reconcile.
func (h *TrophyHandlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ReconcileAll(r.Context())
	if err != nil {
		h.fail(w, r, "ReconcileAll", err)
		return
	}
	writeJSON(w, http.StatusOK, toReconcileResponse(report))
}

// ListBackups handles GET /admin/backups?limit=.
func (h *TrophyHandlers) ListBackups(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit", "")
		return
	}
	if limit == 0 {
		limit = defaultListLimit
	}

	summaries, err := h.service.ListBackups(r.Context(), limit)
	if err != nil {
		h.fail(w, r, "ListBackups", err)
		return
	}
	out := make([]backupSummary, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, backupSummary{ID: s.ID, TakenAt: s.TakenAt, TakenOn: string(s.TakenOn), PlayerCount: s.PlayerCount})
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateBackup handles POST /admin/backups.
func (h *TrophyHandlers) CreateBackup(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.CreateBackup(r.Context())
	if err != nil {
		h.fail(w, r, "CreateBackup", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBackupResponse(snap))
}

// GetBackup handles GET /admin/backups/{id}.
func (h *TrophyHandlers) GetBackup(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetBackup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "GetBackup", err)
		return
	}
	writeJSON(w, http.StatusOK, toBackupResponse(snap))
}

// RestoreBackup handles POST /admin/backups/{id}/restore.
func (h *TrophyHandlers) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.RestoreBackup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "RestoreBackup", err)
		return
	}
	writeJSON(w, http.StatusOK, restoreResponse{Restored: n})
}

// ExportBackup handles GET /admin/backups/{id}/export as an xlsx download.
func (h *TrophyHandlers) ExportBackup(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetBackup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "ExportBackup", err)
		return
	}

	var buf bytes.Buffer
	if err := trophyexport.WriteSnapshotXLSX(&buf, snap); err != nil {
		h.fail(w, r, "ExportBackup", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", trophyexport.Filename(snap)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *TrophyHandlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "Request failed",
			attr.ExtractCorrelationID(r.Context()),
			attr.String("operation", op),
			attr.Int("status", status),
			attr.Error(err),
		)
	}
	writeError(w, status, err.Error(), trophydomain.FailureKind(err))
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, trophydomain.ErrInvalidTag):
		return http.StatusBadRequest
	case errors.Is(err, trophydomain.ErrPlayerNotFound), errors.Is(err, trophydomain.ErrSnapshotNotFound):
		return http.StatusNotFound
	case errors.Is(err, trophydomain.ErrTagOwnedByOther), errors.Is(err, trophydomain.ErrBackupMissing):
		return http.StatusConflict
	case errors.Is(err, trophydomain.ErrSourceUnavailable), errors.Is(err, trophydomain.ErrMalformedPayload):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, kind string) {
	if kind == "internal" {
		kind = ""
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}
