package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"parcel-tracker/internal/qr"
	"parcel-tracker/internal/repository/sqlite"
	"parcel-tracker/internal/service"
	"parcel-tracker/internal/session"
)

type stubDecoder struct {
	text string
	err  error
}

func (d *stubDecoder) Decode(context.Context) (string, error) { return d.text, d.err }

type testServer struct {
	router   *gin.Engine
	decoder  *stubDecoder
	sessions *session.Manager
	users    service.UserService
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "parcel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	userRepo := sqlite.NewUserRepository(db)
	trackingRepo := sqlite.NewTrackingRepository(db)
	require.NoError(t, userRepo.Init(ctx))
	require.NoError(t, trackingRepo.Init(ctx))

	users := service.NewUserService(userRepo, bcrypt.MinCost)
	tracking := service.NewTrackingService(trackingRepo)
	decoder := &stubDecoder{text: qr.NoCodeDetected}
	scans := service.NewScanService(decoder, tracking, logger)
	reports := service.NewReportService(tracking, nil, service.ReportOptions{})

	sessions, err := session.NewManager(session.NewMemoryStore(), session.Config{Secret: "test-secret"}, logger)
	require.NoError(t, err)

	if opts.DB == nil {
		opts.DB = db
	}
	router := gin.New()
	NewHandler(users, tracking, scans, reports, sessions, logger, opts).RegisterRoutes(router)

	return &testServer{router: router, decoder: decoder, sessions: sessions, users: users}
}

type client struct {
	t      *testing.T
	srv    *testServer
	cookie *http.Cookie
}

func (s *testServer) client(t *testing.T) *client {
	return &client{t: t, srv: s}
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	c.srv.router.ServeHTTP(rec, req)

	for _, ck := range rec.Result().Cookies() {
		if ck.Name != c.srv.sessions.CookieName() {
			continue
		}
		if ck.MaxAge < 0 {
			c.cookie = nil
		} else {
			c.cookie = ck
		}
	}
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (c *client) registerAndLogin(username, dorm string) int64 {
	c.t.Helper()
	rec := c.do(http.MethodPost, "/register", gin.H{"username": username, "password": "pw", "dorm": dorm})
	require.Equal(c.t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = c.do(http.MethodPost, "/login", gin.H{"username": username, "password": "pw"})
	require.Equal(c.t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		User LoginUserResponse `json:"user"`
	}
	require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.User.ID
}

func TestTrackingScenario(t *testing.T) {
	srv := newTestServer(t, Options{})
	c := srv.client(t)

	rec := c.do(http.MethodPost, "/register", gin.H{"username": "alice", "password": "pw", "dorm": "12"})
	require.Equal(t, http.StatusCreated, rec.Code)
	reg := decode[struct {
		Message string       `json:"message"`
		User    UserResponse `json:"user"`
	}](t, rec)
	assert.Equal(t, "User registered", reg.Message)
	assert.Equal(t, "alice", reg.User.Username)
	assert.Equal(t, "12", reg.User.DormNumber)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = c.do(http.MethodPost, "/login", gin.H{"username": "alice", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, c.cookie)
	assert.JSONEq(t,
		`{"message":"Login successful","user":{"id":`+strconv.FormatInt(reg.User.ID, 10)+`,"username":"alice","dorm":"12"}}`,
		rec.Body.String())

	rec = c.do(http.MethodGet, "/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":{"id":`+strconv.FormatInt(reg.User.ID, 10)+`}}`, rec.Body.String())

	rec = c.do(http.MethodPost, "/tracking", gin.H{"trackingNumber": "TN1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decode[struct {
		Message  string           `json:"message"`
		Tracking TrackingResponse `json:"tracking"`
	}](t, rec)
	assert.Equal(t, "Tracking added", added.Message)
	assert.Equal(t, "TN1", added.Tracking.TrackingNumber)
	assert.Equal(t, "pending", string(added.Tracking.Status))

	rec = c.do(http.MethodPost, "/tracking_number", gin.H{"userId": reg.User.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		TrackingNumbers []TrackingListItem `json:"trackingNumbers"`
	}](t, rec)
	require.Len(t, list.TrackingNumbers, 1)
	assert.Equal(t, "TN1", list.TrackingNumbers[0].TrackingNumber)
	assert.Equal(t, "pending", string(list.TrackingNumbers[0].Status))

	rec = c.do(http.MethodDelete, "/tracking", gin.H{"trackingNumber": "TN1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message":"Tracking number deleted"`)

	rec = c.do(http.MethodPost, "/tracking_number", gin.H{"userId": strconv.FormatInt(reg.User.ID, 10)})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"trackingNumbers":[]}`, rec.Body.String())
}

func TestRegisterConflictsAndValidation(t *testing.T) {
	srv := newTestServer(t, Options{})
	c := srv.client(t)

	rec := c.do(http.MethodPost, "/register", gin.H{"username": "alice", "password": "pw", "dorm": "12"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = c.do(http.MethodPost, "/register", gin.H{"username": "alice", "password": "other", "dorm": "13"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"username already exists"}`, rec.Body.String())

	// first account untouched
	rec = c.do(http.MethodPost, "/login", gin.H{"username": "alice", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"dorm":"12"`)

	rec = c.do(http.MethodPost, "/register", gin.H{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing fields"}`, rec.Body.String())

	rec = c.do(http.MethodPost, "/register", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing fields"}`, rec.Body.String())
}

func TestLoginFailures(t *testing.T) {
	srv := newTestServer(t, Options{})
	c := srv.client(t)
	c.registerAndLogin("alice", "12")
	c.cookie = nil

	rec := c.do(http.MethodPost, "/login", gin.H{"username": "nobody", "password": "pw"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"User not found"}`, rec.Body.String())

	rec = c.do(http.MethodPost, "/login", gin.H{"username": "alice", "password": "bad"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid password"}`, rec.Body.String())
	assert.Nil(t, c.cookie)

	rec = c.do(http.MethodPost, "/login", gin.H{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrackingErrors(t *testing.T) {
	srv := newTestServer(t, Options{})
	c := srv.client(t)
	c.registerAndLogin("alice", "12")

	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/tracking", gin.H{"trackingNumber": "TN1"}).Code)

	rec := c.do(http.MethodPost, "/tracking", gin.H{"trackingNumber": "TN1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"tracking number already exists"}`, rec.Body.String())

	rec = c.do(http.MethodPost, "/tracking", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing fields"}`, rec.Body.String())

	rec = c.do(http.MethodDelete, "/tracking", gin.H{"trackingNumber": "NOPE"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Tracking number not found"}`, rec.Body.String())

	rec = c.do(http.MethodDelete, "/tracking", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing tracking number"}`, rec.Body.String())

	for _, body := range []gin.H{{}, {"userId": "abc"}, {"userId": 0}, {"userId": 1.5}} {
		rec = c.do(http.MethodPost, "/tracking_number", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "%v", body)
		assert.JSONEq(t, `{"error":"Invalid or missing user ID"}`, rec.Body.String())
	}

	rec = c.do(http.MethodPost, "/tracking/status", gin.H{"trackingNumber": "TN1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"trackingNumber":"TN1","status":"pending"}`, rec.Body.String())

	rec = c.do(http.MethodPost, "/tracking/status", gin.H{"trackingNumber": "NOPE"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusUpdateNeedsNoSession(t *testing.T) {
	srv := newTestServer(t, Options{})
	owner := srv.client(t)
	owner.registerAndLogin("alice", "12")
	require.Equal(t, http.StatusCreated, owner.do(http.MethodPost, "/tracking", gin.H{"trackingNumber": "TN1"}).Code)

	anon := srv.client(t)
	rec := anon.do(http.MethodPost, "/tracking/status/update", gin.H{"trackingNumber": "TN1", "status": "delivered"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Status updated","trackingNumber":"TN1","status":"delivered"}`, rec.Body.String())

	rec = anon.do(http.MethodPost, "/tracking/status/update", gin.H{"trackingNumber": "NOPE", "status": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = anon.do(http.MethodPost, "/tracking/status/update", gin.H{"trackingNumber": "TN1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing fields"}`, rec.Body.String())
}

func TestLogoutMatchesNeverLoggedIn(t *testing.T) {
	srv := newTestServer(t, Options{})

	never := srv.client(t).do(http.MethodGet, "/me", nil)
	require.Equal(t, http.StatusUnauthorized, never.Code)

	c := srv.client(t)
	c.registerAndLogin("alice", "12")
	stale := c.cookie

	rec := c.do(http.MethodPost, "/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Logged out"}`, rec.Body.String())
	assert.Nil(t, c.cookie)

	after := c.do(http.MethodGet, "/me", nil)
	assert.Equal(t, never.Code, after.Code)
	assert.Equal(t, never.Body.String(), after.Body.String())

	c.cookie = stale
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/me", nil).Code)
}

func TestProtectedRouteRedirectsBrowsers(t *testing.T) {
	srv := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestDarkMode(t *testing.T) {
	srv := newTestServer(t, Options{})
	c := srv.client(t)
	c.registerAndLogin("alice", "12")

	rec := c.do(http.MethodGet, "/darkmode", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"darkMode":false}`, rec.Body.String())

	rec = c.do(http.MethodPost, "/darkmode", gin.H{"enabled": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Dark mode preference saved","darkMode":true}`, rec.Body.String())

	rec = c.do(http.MethodGet, "/darkmode", nil)
	assert.JSONEq(t, `{"darkMode":true}`, rec.Body.String())

	for _, body := range []gin.H{{}, {"enabled": "yes"}, {"enabled": 1}} {
		rec = c.do(http.MethodPost, "/darkmode", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid dark mode value"}`, rec.Body.String())
	}

	// the user binding survives the preference change
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/me", nil).Code)
}

func TestReadQR(t *testing.T) {
	srv := newTestServer(t, Options{})
	c := srv.client(t)
	c.registerAndLogin("alice", "12")
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/tracking", gin.H{"trackingNumber": "TN1"}).Code)

	scanner := srv.client(t)

	srv.decoder.text = qr.NoCodeDetected
	rec := scanner.do(http.MethodPost, "/readQR", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"QR read successfully!","qr_text":"No QR code detected","mapped_label":-2}`, rec.Body.String())

	srv.decoder.text = "UNKNOWN"
	rec = scanner.do(http.MethodPost, "/readQR", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"QR read successfully!","qr_text":"UNKNOWN","mapped_label":-1}`, rec.Body.String())

	srv.decoder.text = "TN1"
	rec = scanner.do(http.MethodPost, "/readQR", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"QR read successfully!","qr_text":"TN1","mapped_label":12}`, rec.Body.String())

	rec = c.do(http.MethodPost, "/tracking/status", gin.H{"trackingNumber": "TN1"})
	assert.JSONEq(t, `{"trackingNumber":"TN1","status":"scanned"}`, rec.Body.String())

	srv.decoder.err = errors.New("connection refused")
	rec = scanner.do(http.MethodPost, "/readQR", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestAdminEndpoints(t *testing.T) {
	srv := newTestServer(t, Options{})
	_, err := srv.users.EnsureAdmin(context.Background(), "admin", "secret")
	require.NoError(t, err)

	resident := srv.client(t)
	resident.registerAndLogin("alice", "12")
	require.Equal(t, http.StatusCreated, resident.do(http.MethodPost, "/tracking", gin.H{"trackingNumber": "TN1"}).Code)

	assert.Equal(t, http.StatusUnauthorized, srv.client(t).do(http.MethodGet, "/api/admin/users", nil).Code)
	assert.Equal(t, http.StatusForbidden, resident.do(http.MethodGet, "/api/admin/users", nil).Code)

	admin := srv.client(t)
	rec := admin.do(http.MethodPost, "/login", gin.H{"username": "admin", "password": "secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = admin.do(http.MethodGet, "/api/admin/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]AdminUserResponse](t, rec)
	require.Len(t, users, 2)
	assert.Equal(t, "admin", string(users[0].Role))
	assert.Equal(t, "0", users[0].DormNumber)
	assert.Equal(t, "alice", users[1].Username)

	rec = admin.do(http.MethodGet, "/api/admin/tracking", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]AdminTrackingResponse](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "TN1", entries[0].TrackingNumber)
	assert.Equal(t, "alice", entries[0].Username)
	assert.Equal(t, "12", entries[0].DormNumber)

	rec = admin.do(http.MethodPost, "/api/admin/export", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLoginRateLimit(t *testing.T) {
	srv := newTestServer(t, Options{RateLimit: RateLimitConfig{Requests: 2, Window: time.Hour, Burst: 2}})
	c := srv.client(t)

	for i := 0; i < 2; i++ {
		rec := c.do(http.MethodPost, "/login", gin.H{"username": "x", "password": "y"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := c.do(http.MethodPost, "/login", gin.H{"username": "x", "password": "y"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// other routes are not throttled
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/health", nil).Code)
}

type failingPinger struct{}

func (failingPinger) PingContext(context.Context) error { return errors.New("db down") }

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, Options{})
	c := srv.client(t)

	rec := c.do(http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/ready", nil).Code)

	down := newTestServer(t, Options{DB: failingPinger{}})
	assert.Equal(t, http.StatusServiceUnavailable, down.client(t).do(http.MethodGet, "/api/ready", nil).Code)
}

func TestPagesServedFromPublicDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"index.html", "login.html", "register.html", "tracking.html", "admin.html", "app.js"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("<!-- "+name+" -->"), 0o644))
	}
	srv := newTestServer(t, Options{PublicDir: dir})

	get := func(path string, cookie *http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Accept", "text/html")
		if cookie != nil {
			req.AddCookie(cookie)
		}
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/login", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "login.html")

	rec = get("/", nil)
	assert.Equal(t, http.StatusFound, rec.Code)

	rec = get("/app.js", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "app.js")

	c := srv.client(t)
	c.registerAndLogin("alice", "12")
	rec = get("/tracking", c.cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tracking.html")
}
