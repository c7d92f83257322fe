package http

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agrisense/crop-advisory-service/internal/advisor"
	"github.com/agrisense/crop-advisory-service/internal/export"
	"github.com/agrisense/crop-advisory-service/internal/geocode"
	"github.com/agrisense/crop-advisory-service/internal/health"
	"github.com/agrisense/crop-advisory-service/internal/llm"
	"github.com/agrisense/crop-advisory-service/internal/models"
	"github.com/agrisense/crop-advisory-service/internal/profit"
	"github.com/agrisense/crop-advisory-service/internal/service"
	"github.com/agrisense/crop-advisory-service/internal/session"
	"github.com/agrisense/crop-advisory-service/internal/validation"
)

const maxLocationLen = 100

// sessionHeader binds requests to per-farmer state. The server mints an ID
// when the client presents none and echoes it on every response.
const sessionHeader = "X-Session-ID"

// HealthConfig holds the thresholds the health handler evaluates.
type HealthConfig struct {
	DegradedWindow     time.Duration
	DegradedErrorPct   int
	DegradedMinSamples int
	// CachePing, when set, is called to check cache backend reachability.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	resolver *geocode.Resolver
	analyzer *service.Analyzer
	crops    *advisor.CropAdvisor
	yields   *advisor.YieldAdvisor
	sessions *session.Store
	upstream *health.Tracker
	logger   *zap.Logger

	healthConfig     *HealthConfig
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

func NewHandler(
	resolver *geocode.Resolver,
	analyzer *service.Analyzer,
	crops *advisor.CropAdvisor,
	yields *advisor.YieldAdvisor,
	sessions *session.Store,
	upstream *health.Tracker,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		resolver:     resolver,
		analyzer:     analyzer,
		crops:        crops,
		yields:       yields,
		sessions:     sessions,
		upstream:     upstream,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// session binds the request to its session and echoes the ID.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) *session.Session {
	s := h.sessions.Get(r.Header.Get(sessionHeader))
	w.Header().Set(sessionHeader, s.ID())
	return s
}

// PostAnalyze handles POST /v1/analyze: resolve a typed location, aggregate
// weather and soil, and store the result in the session.
func (h *Handler) PostAnalyze(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Location string `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	location, err := validation.ValidateLocation(body.Location, maxLocationLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return
	}

	s := h.session(w, r)

	loc, err := h.resolver.ResolveText(r.Context(), location)
	if err != nil {
		h.resolveError(w, r, err, "location could not be resolved")
		return
	}
	h.upstream.RecordSuccess("geocode")

	h.analyze(w, r, s, loc)
}

// GetAnalyzeIP handles GET /v1/analyze/ip: locate the caller by IP and run
// the same aggregation.
func (h *Handler) GetAnalyzeIP(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)

	loc, err := h.resolver.ResolveIP(r.Context(), clientIP(r))
	if err != nil {
		h.resolveError(w, r, err, "caller location could not be resolved")
		return
	}
	h.upstream.RecordSuccess("geocode")

	h.analyze(w, r, s, loc)
}

// resolveError separates lookup misses from provider failures. A miss is the
// user's typo, not the geocoder's fault: it answers 404 and stays out of the
// degraded tracker. Only transport failures count against provider health.
func (h *Handler) resolveError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if errors.Is(err, geocode.ErrNoMatch) {
		h.upstream.RecordSuccess("geocode")
		writeError(w, r, http.StatusNotFound, "LOCATION_NOT_FOUND", message)
		return
	}
	h.upstream.RecordError("geocode")
	writeServiceError(w, r, err)
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request, s *session.Session, loc models.Location) {
	result, err := h.analyzer.Analyze(r.Context(), loc)
	if err != nil {
		h.upstream.RecordError("analysis")
		writeServiceError(w, r, err)
		return
	}
	h.upstream.RecordSuccess("analysis")

	s.SetAnalysis(loc, result)
	writeJSON(w, http.StatusOK, result)
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the socket
// peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// PostRecommendations handles POST /v1/recommendations. Requires a prior
// analysis in the session; the recommendation is grounded in those numbers.
func (h *Handler) PostRecommendations(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)

	analysis, ok := s.Analysis()
	if !ok {
		writeError(w, r, http.StatusConflict, "ANALYSIS_REQUIRED", "run a location analysis first")
		return
	}

	text, err := h.crops.Recommend(r.Context(), analysis)
	if err != nil {
		h.upstream.RecordError("model")
		if errors.Is(err, llm.ErrUnavailable) {
			writeError(w, r, http.StatusServiceUnavailable, "MODEL_UNAVAILABLE", "advisory model is not available")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	h.upstream.RecordSuccess("model")

	writeJSON(w, http.StatusOK, map[string]string{
		"region":         analysis.Region,
		"recommendation": text,
	})
}

// PostPredictions handles POST /v1/predictions: up to MaxCropRows crop rows,
// each resolved to a yield/income estimate or a per-row error.
func (h *Handler) PostPredictions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Crops []struct {
			Crop  string  `json:"crop"`
			Acres float64 `json:"acres"`
		} `json:"crops"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	if len(body.Crops) == 0 {
		writeError(w, r, http.StatusBadRequest, "INVALID_CROP", "at least one crop row is required")
		return
	}
	if len(body.Crops) > validation.MaxCropRows {
		writeError(w, r, http.StatusBadRequest, "TOO_MANY_ROWS", "at most 5 crop rows per request")
		return
	}

	s := h.session(w, r)

	predictions := make([]models.CropPrediction, 0, len(body.Crops))
	for _, row := range body.Crops {
		if strings.TrimSpace(row.Crop) == "" {
			continue // blank rows are skipped, not errors
		}
		crop, err := validation.ValidateCrop(row.Crop, row.Acres)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_CROP", err.Error())
			return
		}
		if p := h.yields.Predict(r.Context(), crop, row.Acres); p != nil {
			predictions = append(predictions, *p)
		}
	}

	s.SetPredictions(predictions)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": predictions,
		"totalIncome": s.TotalIncome(),
	})
}

// GetExpenses handles GET /v1/expenses.
func (h *Handler) GetExpenses(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": s.Expenses().Categories(),
		"expenses":   s.Expenses().Records(),
	})
}

// PostExpenseCategories handles POST /v1/expenses/categories: extend the
// session's category list with a user-named category.
func (h *Handler) PostExpenseCategories(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}

	s := h.session(w, r)
	if err := s.Expenses().AddCategory(body.Category); err != nil {
		switch {
		case errors.Is(err, profit.ErrCategoryExists):
			writeError(w, r, http.StatusConflict, "CATEGORY_EXISTS", err.Error())
		default:
			writeError(w, r, http.StatusBadRequest, "INVALID_CATEGORY", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": s.Expenses().Categories(),
	})
}

// PostExpenses handles POST /v1/expenses: append up to MaxExpenseRows rows.
// Invalid rows are dropped, matching the ledger's tolerant intake.
func (h *Handler) PostExpenses(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Expenses []models.ExpenseRecord `json:"expenses"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	if len(body.Expenses) > validation.MaxExpenseRows {
		writeError(w, r, http.StatusBadRequest, "TOO_MANY_ROWS", "at most 5 expense rows per request")
		return
	}

	s := h.session(w, r)
	added := s.Expenses().Add(body.Expenses)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"added":    added,
		"expenses": s.Expenses().Records(),
	})
}

// DeleteExpenses handles DELETE /v1/expenses: clears the whole ledger.
func (h *Handler) DeleteExpenses(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	s.Expenses().Clear()
	w.WriteHeader(http.StatusNoContent)
}

// GetProfit handles GET /v1/profit: the ledger summarized against the income
// of the session's determined predictions.
func (h *Handler) GetProfit(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	writeJSON(w, http.StatusOK, s.Expenses().Summary(s.TotalIncome()))
}

// GetExportPredictions handles GET /v1/export/predictions.csv.
func (h *Handler) GetExportPredictions(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	writeCSV(w, r, "crop_predictions.csv", func() error {
		return export.WritePredictions(w, s.Predictions())
	})
}

// GetExportExpenses handles GET /v1/export/expenses.csv.
func (h *Handler) GetExportExpenses(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	writeCSV(w, r, "expenses.csv", func() error {
		return export.WriteExpenses(w, s.Expenses().Records())
	})
}

func writeCSV(w http.ResponseWriter, r *http.Request, filename string, write func() error) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := write(); err != nil {
		if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
			logger.Warn("csv export failed", zap.Error(err))
		}
	}
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status, statusCode, reason := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", status),
			zap.String("reason", reason))
	}
	h.healthStatusPrev = status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if status == "degraded" {
		checks[reason] = "unhealthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    status,
		"service":   "crop-advisory-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus reports degraded when any upstream source's recent
// error rate breaches the configured threshold.
func (h *Handler) computeHealthStatus() (status string, statusCode int, reason string) {
	if h.healthConfig == nil || h.upstream == nil {
		return "healthy", http.StatusOK, ""
	}
	degraded, source := h.upstream.Degraded(
		h.healthConfig.DegradedWindow,
		float64(h.healthConfig.DegradedErrorPct)/100,
		h.healthConfig.DegradedMinSamples,
	)
	if degraded {
		return "degraded", http.StatusServiceUnavailable, source
	}
	return "healthy", http.StatusOK, ""
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError writes a 502 Bad Gateway response for upstream provider
// failures. Logs the underlying error at DEBUG level if a logger is present.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusBadGateway, "UPSTREAM_ERROR", "Unable to fetch environmental data")
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("upstream error", zap.Error(err))
	}
}
