package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"attenddash/internal/attendance"
	"attenddash/internal/dashboard"
	"attenddash/internal/queue"
	"attenddash/internal/session"
	"attenddash/internal/upstream"
)

type fakeUpstream struct {
	loginResult upstream.LoginResult
	loginErr    error
	loginCalls  int

	recordsBody  []byte
	recordsErr   error
	lastPage     int
	lastLimit    int
	profileBody  []byte
	profileErr   error
	profileCalls int
}

func (f *fakeUpstream) Login(_ context.Context, _ upstream.Credentials) (upstream.LoginResult, error) {
	f.loginCalls++
	return f.loginResult, f.loginErr
}

func (f *fakeUpstream) Records(_ context.Context, _ string, page, limit int) ([]byte, error) {
	f.lastPage, f.lastLimit = page, limit
	return f.recordsBody, f.recordsErr
}

func (f *fakeUpstream) Profile(_ context.Context, _ string) ([]byte, error) {
	f.profileCalls++
	return f.profileBody, f.profileErr
}

type fakeDashboard struct {
	view        *dashboard.View
	loadErr     error
	cached      *dashboard.View
	records     []attendance.Record
	recordsErr  error
	invalidated bool
}

func (f *fakeDashboard) Load(_ context.Context, _ session.Session) (*dashboard.View, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.view, nil
}

func (f *fakeDashboard) Cached(_ context.Context, _ session.Session) (*dashboard.View, bool) {
	return f.cached, f.cached != nil
}

func (f *fakeDashboard) Invalidate(_ context.Context, _ session.Session) {
	f.invalidated = true
}

func (f *fakeDashboard) AllRecords(_ context.Context, _ session.Session) ([]attendance.Record, error) {
	return f.records, f.recordsErr
}

func testRouter(t *testing.T, up *fakeUpstream, dash *fakeDashboard, jobs queue.Queue) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if jobs == nil {
		jobs = queue.NewInMemory(4)
	}
	h := NewHandler(up, dash, jobs, zap.NewNop())
	r := gin.New()
	h.Register(r.Group("/api"))
	return r
}

func doRequest(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLoginRejectsMissingFields(t *testing.T) {
	up := &fakeUpstream{}
	r := testRouter(t, up, &fakeDashboard{}, nil)

	w := doRequest(r, http.MethodPost, "/api/login", `{"rollNumber":"21CS001","email":"a@b.edu"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, up.loginCalls, "upstream must not be called for incomplete credentials")
}

func TestLoginRelaysTokenAndStudent(t *testing.T) {
	up := &fakeUpstream{loginResult: upstream.LoginResult{
		Token:   "tok-123",
		Student: json.RawMessage(`{"name":"Asha"}`),
	}}
	r := testRouter(t, up, &fakeDashboard{}, nil)

	w := doRequest(r, http.MethodPost, "/api/login",
		`{"rollNumber":"21CS001","email":"a@b.edu","password":"pw"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token   string          `json:"token"`
		Student json.RawMessage `json:"student"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "tok-123", resp.Token)
	assert.JSONEq(t, `{"name":"Asha"}`, string(resp.Student))
}

func TestLoginPassesUpstreamStatusThrough(t *testing.T) {
	up := &fakeUpstream{loginErr: &upstream.Error{StatusCode: http.StatusUnauthorized, Message: "Invalid credentials"}}
	r := testRouter(t, up, &fakeDashboard{}, nil)

	w := doRequest(r, http.MethodPost, "/api/login",
		`{"rollNumber":"21CS001","email":"a@b.edu","password":"nope"}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid credentials")
}

func TestStatsRequiresToken(t *testing.T) {
	r := testRouter(t, &fakeUpstream{}, &fakeDashboard{}, nil)

	w := doRequest(r, http.MethodGet, "/api/attendance/stats", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsRejectsExpiredToken(t *testing.T) {
	claims := jwt.MapClaims{"sub": "student-1", "exp": time.Now().Add(-time.Hour).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("remote-secret"))
	require.NoError(t, err)

	r := testRouter(t, &fakeUpstream{}, &fakeDashboard{}, nil)

	w := doRequest(r, http.MethodGet, "/api/attendance/stats?token="+token, "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatsServesLiveView(t *testing.T) {
	view := &dashboard.View{Snapshot: attendance.Snapshot{
		Overall: attendance.OverallStats{Percentage: 80, AttendedClasses: 80, TotalClasses: 100},
	}}
	r := testRouter(t, &fakeUpstream{}, &fakeDashboard{view: view}, nil)

	w := doRequest(r, http.MethodGet, "/api/attendance/stats?token=opaque-token", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Stale bool `json:"stale"`
		Data  struct {
			Snapshot attendance.Snapshot `json:"snapshot"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Stale)
	assert.Equal(t, 80.0, resp.Data.Snapshot.Overall.Percentage)
}

func TestStatsServesStaleCacheOnLoadFailure(t *testing.T) {
	cached := &dashboard.View{Snapshot: attendance.Snapshot{
		Overall: attendance.OverallStats{Percentage: 75},
	}}
	dash := &fakeDashboard{
		loadErr: &upstream.Error{StatusCode: http.StatusBadGateway, Message: "upstream down"},
		cached:  cached,
	}
	r := testRouter(t, &fakeUpstream{}, dash, nil)

	w := doRequest(r, http.MethodGet, "/api/attendance/stats?token=opaque-token", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Stale bool   `json:"stale"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Stale)
	assert.Equal(t, "upstream down", resp.Error)
}

func TestStatsWithoutCachePassesStatusThrough(t *testing.T) {
	dash := &fakeDashboard{loadErr: &upstream.Error{StatusCode: http.StatusBadGateway, Message: "upstream down"}}
	r := testRouter(t, &fakeUpstream{}, dash, nil)

	w := doRequest(r, http.MethodGet, "/api/attendance/stats?token=opaque-token", "")

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRecordsSinglePagePassThrough(t *testing.T) {
	up := &fakeUpstream{recordsBody: []byte(`{"records":[],"pagination":{"hasNextPage":false}}`)}
	r := testRouter(t, up, &fakeDashboard{}, nil)

	w := doRequest(r, http.MethodGet, "/api/attendance/records?token=opaque-token&page=3&limit=25", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, up.lastPage)
	assert.Equal(t, 25, up.lastLimit)
	assert.JSONEq(t, `{"records":[],"pagination":{"hasNextPage":false}}`, w.Body.String())
}

func TestRecordsAllReturnsSortedFiltered(t *testing.T) {
	dash := &fakeDashboard{records: []attendance.Record{
		{Status: attendance.StatusAbsent, CourseName: "CS101", MarkedAt: time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)},
		{Status: attendance.StatusPresent, CourseName: "CS101", MarkedAt: time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)},
		{Status: attendance.StatusPresent, CourseName: "PH105", MarkedAt: time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC)},
	}}
	r := testRouter(t, &fakeUpstream{}, dash, nil)

	w := doRequest(r, http.MethodGet,
		"/api/attendance/records?token=opaque-token&all=true&status=present&course=CS101", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Count   int                 `json:"count"`
		Records []attendance.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "CS101", resp.Records[0].CourseName)
	assert.Equal(t, attendance.StatusPresent, resp.Records[0].Status)
}

func TestRecordsFilterImpliesFullFetch(t *testing.T) {
	up := &fakeUpstream{}
	dash := &fakeDashboard{records: []attendance.Record{
		{Status: attendance.StatusPresent, CourseName: "CS101", MarkedAt: time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)},
	}}
	r := testRouter(t, up, dash, nil)

	w := doRequest(r, http.MethodGet, "/api/attendance/records?token=opaque-token&course=CS101", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, up.lastPage, "filters must use the aggregated records, not the raw page endpoint")
}

func TestRecordsRejectsBadDate(t *testing.T) {
	r := testRouter(t, &fakeUpstream{}, &fakeDashboard{}, nil)

	w := doRequest(r, http.MethodGet, "/api/attendance/records?token=opaque-token&from=03-05-2024", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshEnqueuesJob(t *testing.T) {
	jobs := queue.NewInMemory(4)
	r := testRouter(t, &fakeUpstream{}, &fakeDashboard{}, jobs)

	w := doRequest(r, http.MethodPost, "/api/refresh?token=opaque-token", "")

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ch, err := jobs.Consume(ctx)
	require.NoError(t, err)
	select {
	case job := <-ch:
		assert.Equal(t, "opaque-token", job.Token)
	case <-ctx.Done():
		t.Fatal("expected a queued refresh job")
	}
}

func TestLogoutInvalidatesCache(t *testing.T) {
	dash := &fakeDashboard{}
	r := testRouter(t, &fakeUpstream{}, dash, nil)

	w := doRequest(r, http.MethodPost, "/api/logout", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.Header.Set("Authorization", "Bearer opaque-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, dash.invalidated)
}

func TestProfilePassThrough(t *testing.T) {
	up := &fakeUpstream{profileBody: []byte(`{"student":{"name":"Asha"}}`)}
	r := testRouter(t, up, &fakeDashboard{}, nil)

	w := doRequest(r, http.MethodGet, "/api/profile?token=opaque-token", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"student":{"name":"Asha"}}`, w.Body.String())
	assert.Equal(t, 1, up.profileCalls)
}
