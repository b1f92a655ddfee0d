package audit

import (
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/portalguard/portalguard/internal/platform/database"
)

// Handler serves audit query endpoints.
type Handler struct {
	db    database.Querier
	store *Store
}

// NewHandler creates an audit query handler.
func NewHandler(db database.Querier) *Handler {
	return &Handler{db: db, store: NewStore()}
}

type eventView struct {
	ID          string         `json:"id"`
	PrincipalID string         `json:"principal_id,omitempty"`
	Role        string         `json:"role,omitempty"`
	Action      string         `json:"action"`
	Method      string         `json:"method,omitempty"`
	Path        string         `json:"path,omitempty"`
	Pattern     string         `json:"pattern,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Source      string         `json:"source"`
	CreatedAt   time.Time      `json:"created_at"`
}

// HandleListEvents returns recent authorization events.
// GET /_authz/audit/events?limit=50&after=<RFC3339>&action=access.denied&principal_id=u1
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := ListEventsParams{Limit: 50}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			writeAuditJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 200"})
			return
		}
		params.Limit = n
	}
	if raw := q.Get("after"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeAuditJSON(w, http.StatusBadRequest, map[string]string{"error": "after must be RFC3339"})
			return
		}
		params.After = &t
	}
	if raw := q.Get("action"); raw != "" {
		params.Action = &raw
	}
	if raw := q.Get("principal_id"); raw != "" {
		params.PrincipalID = &raw
	}

	if h.db == nil {
		writeAuditJSON(w, http.StatusOK, map[string]any{"events": []any{}, "count": 0})
		return
	}

	events, err := h.store.ListEvents(r.Context(), h.db, params)
	if err != nil {
		writeAuditJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, eventView{
			ID:          e.ID.String(),
			PrincipalID: e.PrincipalID,
			Role:        e.Role,
			Action:      e.Action,
			Method:      e.Method,
			Path:        e.Path,
			Pattern:     e.Pattern,
			RequestID:   e.RequestID,
			Metadata:    e.Metadata,
			Source:      e.Source,
			CreatedAt:   e.CreatedAt,
		})
	}

	writeAuditJSON(w, http.StatusOK, map[string]any{"events": views, "count": len(views)})
}

func writeAuditJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
