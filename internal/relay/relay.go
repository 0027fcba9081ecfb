package relay

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"attenddash/internal/attendance"
	"attenddash/internal/dashboard"
	"attenddash/internal/queue"
	"attenddash/internal/session"
	"attenddash/internal/upstream"
)

// upstreamAPI is the slice of the upstream client the relay forwards to.
type upstreamAPI interface {
	Login(ctx context.Context, creds upstream.Credentials) (upstream.LoginResult, error)
	Records(ctx context.Context, token string, page, limit int) ([]byte, error)
	Profile(ctx context.Context, token string) ([]byte, error)
}

// dashboardAPI builds and caches dashboard views.
type dashboardAPI interface {
	Load(ctx context.Context, sess session.Session) (*dashboard.View, error)
	Cached(ctx context.Context, sess session.Session) (*dashboard.View, bool)
	Invalidate(ctx context.Context, sess session.Session)
	AllRecords(ctx context.Context, sess session.Session) ([]attendance.Record, error)
}

// Handler serves the /api relay surface.
type Handler struct {
	upstream upstreamAPI
	dash     dashboardAPI
	jobs     queue.Queue
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler creates the relay handler.
func NewHandler(up upstreamAPI, dash dashboardAPI, jobs queue.Queue, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{upstream: up, dash: dash, jobs: jobs, logger: logger, now: time.Now}
}

// Register mounts the relay routes on the /api group.
func (h *Handler) Register(api *gin.RouterGroup) {
	api.POST("/login", h.Login)
	api.POST("/logout", h.Logout)
	api.POST("/refresh", h.Refresh)
	api.GET("/attendance/stats", h.AttendanceStats)
	api.GET("/attendance/records", h.AttendanceRecords)
	api.GET("/profile", h.Profile)
}

// Login forwards credentials to the upstream and relays token plus student
// profile. Missing fields are rejected before any network call.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		RollNumber string `json:"rollNumber"`
		Email      string `json:"email"`
		Password   string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.RollNumber == "" || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rollNumber, email and password are required"})
		return
	}

	result, err := h.upstream.Login(c.Request.Context(), upstream.Credentials{
		RollNumber: req.RollNumber,
		Email:      req.Email,
		Password:   req.Password,
	})
	if err != nil {
		h.logger.Warn("login failed", zap.String("rollNumber", req.RollNumber), zap.Error(err))
		h.relayError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": result.Token, "student": result.Student})
}

// Logout drops the cached snapshot for the session.
func (h *Handler) Logout(c *gin.Context) {
	sess, ok := h.sessionFrom(c)
	if !ok {
		return
	}
	h.dash.Invalidate(c.Request.Context(), sess)
	c.Status(http.StatusNoContent)
}

// Refresh enqueues a background snapshot rebuild for the session.
func (h *Handler) Refresh(c *gin.Context) {
	sess, ok := h.sessionFrom(c)
	if !ok {
		return
	}
	job := queue.NewJob(sess.Token)
	if err := h.jobs.Publish(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not enqueue refresh"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": job.ID})
}

// AttendanceStats serves the normalized dashboard view. On a failed live
// load the last cached view is returned with a stale marker rather than
// stranding the caller with nothing.
func (h *Handler) AttendanceStats(c *gin.Context) {
	sess, ok := h.sessionFrom(c)
	if !ok {
		return
	}

	view, err := h.dash.Load(c.Request.Context(), sess)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"data": view, "stale": false})
		return
	}

	h.logger.Warn("dashboard load failed", zap.Error(err))
	if cached, hit := h.dash.Cached(c.Request.Context(), sess); hit {
		c.JSON(http.StatusOK, gin.H{"data": cached, "stale": true, "error": errorMessage(err)})
		return
	}
	h.relayError(c, err)
}

// AttendanceRecords serves attendance records. Without parameters it is a
// single-page pass-through; all=true (or any filter parameter) runs the full
// bounded pagination loop and serves canonical, sorted records.
func (h *Handler) AttendanceRecords(c *gin.Context) {
	sess, ok := h.sessionFrom(c)
	if !ok {
		return
	}

	filter, filtered, err := recordFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !filtered && c.Query("all") != "true" {
		page := intQuery(c, "page", 1)
		limit := intQuery(c, "limit", attendance.DefaultPageLimit)
		body, err := h.upstream.Records(c.Request.Context(), sess.Token, page, limit)
		if err != nil {
			h.relayError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json", body)
		return
	}

	records, err := h.dash.AllRecords(c.Request.Context(), sess)
	if err != nil {
		h.relayError(c, err)
		return
	}
	attendance.SortRecords(records)
	records = attendance.FilterRecords(records, filter)
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// Profile is a pass-through to the upstream profile endpoint.
func (h *Handler) Profile(c *gin.Context) {
	sess, ok := h.sessionFrom(c)
	if !ok {
		return
	}
	body, err := h.upstream.Profile(c.Request.Context(), sess.Token)
	if err != nil {
		h.relayError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

// sessionFrom resolves the bearer token from either deployment variant:
// ?token= query parameter or Authorization header. Validation failures are
// written to the response and reported as !ok.
func (h *Handler) sessionFrom(c *gin.Context) (session.Session, bool) {
	token := c.Query("token")
	if token == "" {
		authz := c.GetHeader("Authorization")
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			token = strings.TrimSpace(authz[len("bearer "):])
		}
	}

	sess, err := session.FromToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "token required"})
		return session.Session{}, false
	}
	if err := sess.Valid(h.now()); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token expired"})
		return session.Session{}, false
	}
	return sess, true
}

// relayError maps an upstream failure to the response: upstream HTTP errors
// pass their status through, local faults become a 500.
func (h *Handler) relayError(c *gin.Context, err error) {
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		c.JSON(upErr.StatusCode, gin.H{"error": upErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": errorMessage(err)})
}

func errorMessage(err error) string {
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		return upErr.Message
	}
	return err.Error()
}

func recordFilter(c *gin.Context) (attendance.RecordFilter, bool, error) {
	filter := attendance.RecordFilter{Course: c.Query("course")}

	if from := c.Query("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return filter, false, errors.New("from must be YYYY-MM-DD")
		}
		filter.From = t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return filter, false, errors.New("to must be YYYY-MM-DD")
		}
		// Date-only upper bound is inclusive of the whole day.
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	if status := c.Query("status"); status != "" {
		filter.Status = attendance.ParseStatus(status)
	}

	filtered := filter.Course != "" || !filter.From.IsZero() || !filter.To.IsZero() || filter.Status != ""
	return filter, filtered, nil
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
