package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/ingest"
	"github.com/opensource-finance/harrier/internal/monitor"
	"github.com/opensource-finance/harrier/internal/query"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/worker"
)

var validate = validator.New()

// Handler holds dependencies for API handlers.
type Handler struct {
	monitor *monitor.Monitor
	cache   domain.Cache
	bus     domain.EventBus
	worker  *worker.Worker
	version string
}

// NewHandler creates a new API handler.
func NewHandler(mon *monitor.Monitor, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		monitor: mon,
		cache:   cache,
		bus:     bus,
		version: version,
	}
}

// GenerateReportResponse is the response for POST /generate-report.
type GenerateReportResponse struct {
	RunID          string             `json:"runId"`
	Message        string             `json:"message"`
	Report         *domain.Report     `json:"report"`
	RuleStats      map[string]int     `json:"ruleStats"`
	Suspicious     int                `json:"suspicious"`
	OutputExported bool               `json:"outputExported"`
	ReportExported bool               `json:"reportExported"`
	Metadata       domain.RunMetadata `json:"metadata"`
}

// GenerateReport handles POST /generate-report.
func (h *Handler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	run, err := h.monitor.Run(r.Context())
	if err != nil {
		slog.Error("analysis failed",
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		msg := err.Error()
		if errors.Is(err, rules.ErrNoRules) {
			msg = "no rules configured"
		}
		writeError(w, http.StatusInternalServerError, msg)
		return
	}

	writeJSON(w, http.StatusOK, GenerateReportResponse{
		RunID:          run.ID,
		Message:        "Report generated successfully.",
		Report:         run.Report,
		RuleStats:      domain.RuleStats(run.RuleResults),
		Suspicious:     len(run.Flagged),
		OutputExported: run.OutputExported,
		ReportExported: run.ReportExported,
		Metadata:       run.Metadata,
	})
}

// FraudCheck handles POST /fraud-check.
func (h *Handler) FraudCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if req.RequestID == "" {
		req.RequestID = GetRequestID(ctx)
	}

	res, err := h.monitor.CheckRequest(ctx, req)
	if err != nil {
		if errors.Is(err, monitor.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("fraud check failed", "request_id", req.RequestID, "error", err)
		writeError(w, http.StatusInternalServerError, "fraud check failed")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// GetFraudCheck handles GET /fraud-check/{requestId} from the result cache.
func (h *Handler) GetFraudCheck(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")

	res, err := h.monitor.CachedCheck(r.Context(), requestID)
	if err != nil {
		slog.Warn("failed to read cached check", "request_id", requestID, "error", err)
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "check result not found")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// GetReport handles GET /report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep := h.monitor.LatestReport(r.Context())
	if rep == nil {
		writeError(w, http.StatusNotFound, "no report available, call POST /generate-report first")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// TransactionView is one annotated transaction of the latest pass.
type TransactionView struct {
	UserID       int64   `json:"userId"`
	Timestamp    string  `json:"timestamp"`
	MerchantName string  `json:"merchantName"`
	Amount       float64 `json:"amount"`
	IsSuspicious bool    `json:"isSuspicious"`
	FlagReasons  string  `json:"flagReasons"`
}

// ListTransactions handles GET /transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	txs := h.monitor.Transactions()

	if v := q.Get("suspicious"); v != "" {
		only, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "suspicious must be a boolean")
			return
		}
		if only {
			txs = domain.Suspicious(txs)
		}
	}

	if expr := q.Get("filter"); expr != "" {
		f, err := query.Compile(expr)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		txs, err = f.Apply(txs)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	views := make([]TransactionView, len(txs))
	for i, tx := range txs {
		views[i] = TransactionView{
			UserID:       tx.UserID,
			Timestamp:    tx.Timestamp.Format(time.RFC3339),
			MerchantName: tx.MerchantName,
			Amount:       tx.Amount,
			IsSuspicious: tx.IsSuspicious,
			FlagReasons:  tx.FlagReasons(),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": views,
		"count":        len(views),
	})
}

// ImportTransactions handles POST /transactions/import.
func (h *Handler) ImportTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	repo := h.monitor.Repository()
	if repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	txs, err := ingest.LoadJSON(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.monitor.Import(ctx, txs); err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("failed to import transactions", "count", len(txs), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to import transactions")
		return
	}

	total, err := repo.CountTransactions(ctx)
	if err != nil {
		slog.Warn("failed to count transactions", "error", err)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"imported": len(txs),
		"total":    total,
	})
}

// ListRuns handles GET /runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	repo := h.monitor.Repository()
	if repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	limit := repository.DefaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := repo.ListRuns(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun handles GET /runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	repo := h.monitor.Repository()
	if repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	runID := chi.URLParam(r, "id")
	run, err := repo.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		slog.Error("failed to get run", "id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// Root handles GET /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "Hello World")
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if repo := h.monitor.Repository(); repo != nil {
		if err := repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic and whether
// a batch pass has populated the profile cache.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"ready":    true,
		"analyzed": h.monitor.LatestRun() != nil,
		"profiles": len(h.monitor.Engine().Profiles()),
	}
	if h.worker != nil {
		resp["worker"] = h.worker.GetStats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// validationMessage flattens validator errors into "field: tag" pairs.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msg := "invalid request:"
	for i, fe := range verrs {
		if i > 0 {
			msg += ","
		}
		msg += " " + fe.Field() + " " + fe.Tag()
	}
	return msg
}
