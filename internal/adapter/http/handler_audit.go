package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/usecase"
)

// AuditService is the audit behavior the handler depends on
type AuditService interface {
	ListEntries(ctx context.Context, actor domain.Actor, filter domain.AuditFilter) (usecase.AuditPage, error)
	GetEntry(ctx context.Context, actor domain.Actor, id string) (domain.AuditTrailEntry, error)
	ProductTrail(ctx context.Context, actor domain.Actor, productID string, filter domain.AuditFilter) (usecase.AuditPage, error)
	UserTrail(ctx context.Context, actor domain.Actor, userID string, filter domain.AuditFilter) (usecase.AuditPage, error)
	Export(ctx context.Context, actor domain.Actor, filter domain.AuditFilter, format string) ([]byte, error)
	Statistics(ctx context.Context, actor domain.Actor, filter domain.AuditFilter) (usecase.AuditStatistics, error)
	VerifyEntry(ctx context.Context, actor domain.Actor, id string) (domain.IntegrityReport, error)
	DetectTampering(ctx context.Context, actor domain.Actor, id string) (domain.TamperDetectionResult, error)
	VerifyChain(ctx context.Context, actor domain.Actor) (usecase.ChainVerification, error)
	Alerts(ctx context.Context, actor domain.Actor) ([]usecase.TamperAlert, error)
	Archive(ctx context.Context, actor domain.Actor, days int) (int, error)
	Cleanup(ctx context.Context, actor domain.Actor) (int, error)
	SetReadOnly(ctx context.Context, actor domain.Actor, enabled bool) (bool, error)
}

// AuditHandler handles HTTP requests for the audit trail
type AuditHandler struct {
	audit AuditService
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(audit AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

type archiveRequest struct {
	Days int `json:"days"`
}

type readOnlyRequest struct {
	Enabled *bool `json:"enabled"`
}

// RegisterRoutes registers audit routes; fixed paths come before /audit/{id}
func (h *AuditHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/audit", h.ListEntries).Methods("GET")
	router.HandleFunc("/api/v1/audit/export", h.Export).Methods("GET")
	router.HandleFunc("/api/v1/audit/stats", h.Statistics).Methods("GET")
	router.HandleFunc("/api/v1/audit/integrity", h.VerifyChain).Methods("GET")
	router.HandleFunc("/api/v1/audit/alerts", h.Alerts).Methods("GET")
	router.HandleFunc("/api/v1/audit/archive", h.Archive).Methods("POST")
	router.HandleFunc("/api/v1/audit/cleanup", h.Cleanup).Methods("POST")
	router.HandleFunc("/api/v1/audit/read-only", h.SetReadOnly).Methods("PUT")
	router.HandleFunc("/api/v1/audit/products/{id}", h.ProductTrail).Methods("GET")
	router.HandleFunc("/api/v1/audit/users/{id}", h.UserTrail).Methods("GET")
	router.HandleFunc("/api/v1/audit/{id}", h.GetEntry).Methods("GET")
	router.HandleFunc("/api/v1/audit/{id}/verify", h.VerifyEntry).Methods("GET")
	router.HandleFunc("/api/v1/audit/{id}/tamper", h.DetectTampering).Methods("GET")
}

// parseAuditFilter reads the audit query parameters
func parseAuditFilter(r *http.Request) (domain.AuditFilter, error) {
	q := r.URL.Query()
	filter := domain.AuditFilter{
		ActorID:        q.Get("actorId"),
		SubjectID:      q.Get("subjectId"),
		SubjectType:    q.Get("subjectType"),
		ReasonContains: q.Get("q"),
		SortBy:         domain.SortField(q.Get("sortBy")),
		SortOrder:      domain.SortOrder(strings.ToLower(q.Get("sortOrder"))),
	}

	if v := q.Get("action"); v != "" {
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				filter.Actions = append(filter.Actions, domain.AuditAction(strings.ToUpper(a)))
			}
		}
	}
	if v := q.Get("priority"); v != "" {
		filter.Priority = domain.AuditPriority(strings.ToUpper(v))
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		if v := q.Get(p.name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return filter, fmt.Errorf("%s must be an RFC3339 timestamp", p.name)
			}
			*p.dst = &t
		}
	}
	if v := q.Get("includeArchived"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			return filter, fmt.Errorf("includeArchived must be a boolean")
		}
		filter.IncludeArchived = include
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &filter.Limit}, {"offset", &filter.Offset}} {
		if v := q.Get(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return filter, fmt.Errorf("%s must be a non-negative integer", p.name)
			}
			*p.dst = n
		}
	}
	return filter, nil
}

func (h *AuditHandler) writePage(w http.ResponseWriter, r *http.Request, query func(domain.AuditFilter) (usecase.AuditPage, error)) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := query(filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Audit entries retrieved successfully", page)
}

// ListEntries handles audit queries
func (h *AuditHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	h.writePage(w, r, func(f domain.AuditFilter) (usecase.AuditPage, error) {
		return h.audit.ListEntries(r.Context(), actor, f)
	})
}

// ProductTrail handles the audit trail of one product
func (h *AuditHandler) ProductTrail(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	h.writePage(w, r, func(f domain.AuditFilter) (usecase.AuditPage, error) {
		return h.audit.ProductTrail(r.Context(), actor, mux.Vars(r)["id"], f)
	})
}

// UserTrail handles the audit trail of one user
func (h *AuditHandler) UserTrail(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	h.writePage(w, r, func(f domain.AuditFilter) (usecase.AuditPage, error) {
		return h.audit.UserTrail(r.Context(), actor, mux.Vars(r)["id"], f)
	})
}

// GetEntry handles retrieving one entry
func (h *AuditHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.audit.GetEntry(r.Context(), ActorFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Audit entry retrieved successfully", entry)
}

// Export streams matching entries as a json or csv attachment
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = usecase.ExportFormatJSON
	}

	data, err := h.audit.Export(r.Context(), ActorFromContext(r.Context()), filter, format)
	if err != nil {
		writeError(w, err)
		return
	}

	contentType := "application/json; charset=utf-8"
	if format == usecase.ExportFormatCSV {
		contentType = "text/csv; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="audit-%s.%s"`, time.Now().UTC().Format("20060102T150405Z"), format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Statistics handles audit statistics
func (h *AuditHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	stats, err := h.audit.Statistics(r.Context(), ActorFromContext(r.Context()), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Audit statistics retrieved successfully", stats)
}

// VerifyEntry handles single entry verification. An invalid entry is reported with 200
// and isValid=false; the request itself succeeded.
func (h *AuditHandler) VerifyEntry(w http.ResponseWriter, r *http.Request) {
	report, err := h.audit.VerifyEntry(r.Context(), ActorFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Audit entry verified", report)
}

// DetectTampering handles tamper classification of one entry
func (h *AuditHandler) DetectTampering(w http.ResponseWriter, r *http.Request) {
	result, err := h.audit.DetectTampering(r.Context(), ActorFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Tamper detection completed", result)
}

// VerifyChain handles verification of the caller's tenant chain
func (h *AuditHandler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	result, err := h.audit.VerifyChain(r.Context(), ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Audit chain verified", result)
}

// Alerts lists tamper alerts raised by background verification
func (h *AuditHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.audit.Alerts(r.Context(), ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Tamper alerts retrieved", alerts)
}

// Archive handles soft-archiving old entries; an empty body uses the configured age
func (h *AuditHandler) Archive(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeFailure(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	n, err := h.audit.Archive(r.Context(), ActorFromContext(r.Context()), req.Days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Audit entries archived", map[string]int{"archived": n})
}

// Cleanup handles removal of expired entries
func (h *AuditHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	n, err := h.audit.Cleanup(r.Context(), ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Expired audit entries removed", map[string]int{"removed": n})
}

// SetReadOnly toggles read-only mode
func (h *AuditHandler) SetReadOnly(w http.ResponseWriter, r *http.Request) {
	var req readOnlyRequest
	if err := decodeJSON(r, &req); err != nil || req.Enabled == nil {
		writeFailure(w, http.StatusBadRequest, "enabled is required")
		return
	}

	readOnly, err := h.audit.SetReadOnly(r.Context(), ActorFromContext(r.Context()), *req.Enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Audit read-only mode updated", map[string]bool{"readOnly": readOnly})
}
