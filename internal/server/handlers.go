package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"freeslot/internal/meeting"
	"freeslot/internal/models"
	"freeslot/internal/planner"
)

const (
	requestIDHeader = "X-Request-ID"

	// Longer meetings never fit a day.
	maxDurationMinutes = 2 * 24 * 60
)

// Finder resolves meeting windows for a day.
type Finder interface {
	FindTimes(ctx context.Context, req planner.Request, extra []*models.Event) (*planner.Plan, error)
	Location() *time.Location
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Date              string          `json:"date" binding:"required"`
	Attendees         []string        `json:"attendees"`
	OptionalAttendees []string        `json:"optional_attendees"`
	DurationMinutes   int             `json:"duration_minutes"`
	Events            []*models.Event `json:"events"`
}

// WindowResponse is one meeting window.
type WindowResponse struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	StartMinute int       `json:"start_minute"`
	EndMinute   int       `json:"end_minute"`
	Label       string    `json:"label"`
}

// QueryResponse is the body of a successful POST /v1/query.
type QueryResponse struct {
	RequestID string           `json:"request_id"`
	Date      string           `json:"date"`
	Windows   []WindowResponse `json:"windows"`
}

type Handlers interface {
	PostQuery(gctx *gin.Context)
	GetHealth(gctx *gin.Context)
}

type handlers struct {
	logger *slog.Logger
	finder Finder
}

func NewHandlers(logger *slog.Logger, finder Finder) Handlers {
	return &handlers{logger: logger, finder: finder}
}

func (h *handlers) PostQuery(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	logger := h.logger.With("request_id", gctx.GetString(requestIDHeader))

	var body QueryRequest
	if err := gctx.ShouldBindJSON(&body); err != nil {
		abort(gctx, logger, http.StatusBadRequest, NewError("failed to bind JSON", err))
		return
	}

	date, err := time.ParseInLocation(time.DateOnly, body.Date, h.finder.Location())
	if err != nil {
		abort(gctx, logger, http.StatusBadRequest, NewError("date must be YYYY-MM-DD", err))
		return
	}

	plan, err := h.finder.FindTimes(ctx, planner.Request{
		Date:              date,
		Attendees:         body.Attendees,
		OptionalAttendees: body.OptionalAttendees,
		Duration:          time.Duration(clampMinutes(body.DurationMinutes)) * time.Minute,
	}, body.Events)
	if err != nil {
		if errors.Is(err, meeting.ErrNegativeDuration) || errors.Is(err, meeting.ErrAttendeeConflict) {
			abort(gctx, logger, http.StatusBadRequest, NewError("query validation failed", err))
			return
		}
		abort(gctx, logger, http.StatusInternalServerError, NewError("query failed", err))
		return
	}

	resp := QueryResponse{
		RequestID: gctx.GetString(requestIDHeader),
		Date:      plan.Day.Format(time.DateOnly),
		Windows:   make([]WindowResponse, 0, len(plan.Windows)),
	}
	for _, w := range plan.Windows {
		resp.Windows = append(resp.Windows, WindowResponse{
			Start:       w.Start,
			End:         w.End,
			StartMinute: w.Range.Start(),
			EndMinute:   w.Range.End(),
			Label:       meeting.Clock(w.Range.Start()) + "-" + meeting.Clock(w.Range.End()),
		})
	}
	gctx.JSON(http.StatusOK, resp)
}

// clampMinutes bounds a requested duration so converting it to time.Duration cannot
// overflow. Negative values stay negative and are rejected by validation.
func clampMinutes(m int) int {
	return max(min(m, maxDurationMinutes), -1)
}

// abort logs apiErr and sends it as the response body.
func abort(gctx *gin.Context, logger *slog.Logger, status int, apiErr *Error) {
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "status", status, "error", apiErr)
	} else {
		logger.Warn("Request rejected", "status", status, "error", apiErr)
	}
	gctx.AbortWithStatusJSON(status, apiErr)
}

func (h *handlers) GetHealth(gctx *gin.Context) {
	gctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RequestID tags every request with an id, reusing the caller's when present.
func RequestID() gin.HandlerFunc {
	return func(gctx *gin.Context) {
		id := gctx.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		gctx.Set(requestIDHeader, id)
		gctx.Header(requestIDHeader, id)
		gctx.Next()
	}
}

// AccessLog logs one line per request.
func AccessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		start := time.Now()
		gctx.Next()
		logger.Info("Handled request",
			"method", gctx.Request.Method,
			"path", gctx.FullPath(),
			"status", gctx.Writer.Status(),
			"duration", time.Since(start),
			"request_id", gctx.GetString(requestIDHeader))
	}
}

// NewRouter wires the handlers into a gin engine.
func NewRouter(logger *slog.Logger, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), AccessLog(logger))

	router.GET("/healthz", h.GetHealth)
	router.POST("/v1/query", h.PostQuery)
	return router
}
