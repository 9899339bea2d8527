package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"statdash/internal/apperr"
	"statdash/internal/auth"
	"statdash/internal/config"
	"statdash/internal/export"
	"statdash/internal/middleware"
	"statdash/internal/models"
	"statdash/internal/stats"
)

type fakeStore struct {
	rows    []models.DailyStat
	orgs    []string
	err     error
	pingErr error
	calls   int
	lastQ   models.StatsQuery
}

func (s *fakeStore) FetchDailyStats(ctx context.Context, q models.StatsQuery) ([]models.DailyStat, error) {
	s.calls++
	s.lastQ = q
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

func (s *fakeStore) ListOrganizations(ctx context.Context) ([]string, error) {
	return s.orgs, s.err
}

func (s *fakeStore) Ping(ctx context.Context) error { return s.pingErr }

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func sampleRows() []models.DailyStat {
	return []models.DailyStat{
		{Date: d(2024, 1, 1), Organization: "ООО Альфа", MaxDrivers: 10, TotalOrders: 100},
		{Date: d(2024, 1, 2), Organization: "ООО Альфа", MaxDrivers: 20, TotalOrders: 200},
		{Date: d(2024, 2, 1), Organization: "ООО Альфа", MaxDrivers: 5, TotalOrders: 10},
		{Date: d(2024, 2, 2), Organization: "ООО Альфа", MaxDrivers: 6, TotalOrders: 10},
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "base.html"), `{{block "content" .}}{{end}}`)
	writeFile(t, filepath.Join(dir, "pages", "login.html"), `{{define "content"}}csrf={{.CSRFToken}};{{.Errors.Get "general"}}{{end}}`)
	writeFile(t, filepath.Join(dir, "pages", "dashboard.html"), `{{define "content"}}dashboard {{.Username}} filter={{.FilterEnabled}} csrf={{.CSRFToken}};{{end}}`)

	cfg := config.Default()
	cfg.TemplatesPath = dir
	cfg.StaticPath = t.TempDir()
	cfg.CorpFilter.Path = filepath.Join(dir, "corp.txt")
	return &cfg
}

func newStatsHandlers(store *fakeStore, cfg *config.Config) (*StatsHandlers, *scs.SessionManager) {
	sm := scs.New()
	return NewStatsHandlers(store, stats.NewOrganizationFilter(store, cfg.CorpFilter.Path), stats.NewFormatter(stats.Russian), sm, cfg.CorpFilter.DefaultEnabled), sm
}

func serve(t *testing.T, sm *scs.SessionManager, h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	sm.LoadAndSave(h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body["error"]
}

const validQuery = "/api/data?organization=%D0%9E%D0%9E%D0%9E+%D0%90%D0%BB%D1%8C%D1%84%D0%B0&date_from=2024-01-01&date_to=2024-02-29"

func TestDataHandlerDaily(t *testing.T) {
	store := &fakeStore{rows: sampleRows()}
	h, sm := newStatsHandlers(store, testConfig(t))

	rr := serve(t, sm, h.DataHandler, validQuery)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	var records []stats.DailyRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	require.Len(t, records, 4)
	assert.Equal(t, "2024-01-01", records[0].Date)
	assert.Equal(t, "ООО Альфа", store.lastQ.Organization)
	assert.Equal(t, d(2024, 2, 29), store.lastQ.DateTo)
}

func TestDataHandlerMonthly(t *testing.T) {
	h, sm := newStatsHandlers(&fakeStore{rows: sampleRows()}, testConfig(t))

	rr := serve(t, sm, h.DataHandler, validQuery+"&monthly=true")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[
		{"date":"2024-01-01","organization":"ООО Альфа","avg_drivers":15,"total_orders":300,"month_name":"Январь 2024"},
		{"date":"2024-02-01","organization":"ООО Альфа","avg_drivers":5.5,"total_orders":20,"month_name":"Февраль 2024"}
	]`, rr.Body.String())
}

func TestDataHandlerEmpty(t *testing.T) {
	h, sm := newStatsHandlers(&fakeStore{rows: []models.DailyStat{}}, testConfig(t))

	rr := serve(t, sm, h.DataHandler, validQuery)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))
}

func TestDataHandlerValidation(t *testing.T) {
	store := &fakeStore{}
	h, sm := newStatsHandlers(store, testConfig(t))

	rr := serve(t, sm, h.DataHandler, "/api/data?date_from=2024-01-01&date_to=2024-01-31")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Не выбрана организация", decodeError(t, rr))

	rr = serve(t, sm, h.DataHandler, "/api/data?organization=x&date_to=2024-01-31")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Не выбран период", decodeError(t, rr))

	assert.Zero(t, store.calls)
}

func TestDataHandlerStoreErrorHidesDetails(t *testing.T) {
	store := &fakeStore{err: &apperr.DataSourceError{Op: "fetch_daily_stats", Err: errors.New("password authentication failed for user postgres")}}
	h, sm := newStatsHandlers(store, testConfig(t))

	rr := serve(t, sm, h.DataHandler, validQuery)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Ошибка сервера при получении данных", decodeError(t, rr))
	assert.NotContains(t, rr.Body.String(), "postgres")
}

func TestDataHandlerUnexpectedError(t *testing.T) {
	h, sm := newStatsHandlers(&fakeStore{err: errors.New("boom")}, testConfig(t))

	rr := serve(t, sm, h.DataHandler, validQuery)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Ошибка сервера", decodeError(t, rr))
}

func TestExportHandlerNoRows(t *testing.T) {
	h, sm := newStatsHandlers(&fakeStore{rows: []models.DailyStat{}}, testConfig(t))

	rr := serve(t, sm, h.ExportHandler, strings.Replace(validQuery, "/api/data", "/api/export", 1))

	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Нет данных для экспорта", decodeError(t, rr))
}

func TestExportHandlerMonthly(t *testing.T) {
	h, sm := newStatsHandlers(&fakeStore{rows: sampleRows()}, testConfig(t))

	rr := serve(t, sm, h.ExportHandler, strings.Replace(validQuery, "/api/data", "/api/export", 1)+"&monthly=true")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, export.ContentTypeXLSX, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "2024-01-01_2024-02-29.xlsx")

	f, err := excelize.OpenReader(rr.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Данные")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, stats.Russian.MonthlyHeader, rows[0])
	assert.Equal(t, []string{"Январь 2024", "ООО Альфа", "15.0", "300"}, rows[1])
	assert.Equal(t, []string{"Февраль 2024", "ООО Альфа", "5.5", "20"}, rows[2])
}

func TestExportHandlerValidation(t *testing.T) {
	h, sm := newStatsHandlers(&fakeStore{}, testConfig(t))

	rr := serve(t, sm, h.ExportHandler, "/api/export?organization=x")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOrganizationsHandler(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.CorpFilter.Path, "ООО\n")
	store := &fakeStore{orgs: []string{"ИП Бета", "ООО Альфа"}}
	h, sm := newStatsHandlers(store, cfg)

	rr := serve(t, sm, h.OrganizationsHandler, "/api/organizations")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `["ООО Альфа"]`, rr.Body.String())

	rr = serve(t, sm, h.OrganizationsHandler, "/api/organizations?filter_corp=false")
	assert.JSONEq(t, `["ИП Бета","ООО Альфа"]`, rr.Body.String())
}

func TestOrganizationsHandlerStoreError(t *testing.T) {
	h, sm := newStatsHandlers(&fakeStore{err: errors.New("down")}, testConfig(t))

	rr := serve(t, sm, h.OrganizationsHandler, "/api/organizations")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))
}

func TestToggleCorpFilterPerSession(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.CorpFilter.Path, "ООО\n")
	h, sm := newStatsHandlers(&fakeStore{orgs: []string{"ИП Бета", "ООО Альфа"}}, cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/toggle-corp-filter", h.ToggleCorpFilterHandler)
	mux.HandleFunc("GET /api/organizations", h.OrganizationsHandler)
	srv := sm.LoadAndSave(mux)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/toggle-corp-filter", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"success","filter_enabled":false}`, rr.Body.String())
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/api/organizations", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	assert.JSONEq(t, `["ИП Бета","ООО Альфа"]`, rr.Body.String())

	// Другая сессия по-прежнему видит фильтр по умолчанию.
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/organizations", nil))
	assert.JSONEq(t, `["ООО Альфа"]`, rr.Body.String())
}

func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler(&fakeStore{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	HealthHandler(&fakeStore{pingErr: errors.New("down")}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

// testServer собирает полный маршрутизатор с middleware.
func testServer(t *testing.T, store *fakeStore) http.Handler {
	t.Helper()
	cfg := testConfig(t)
	sm := scs.New()
	app, err := NewAppHandlers(cfg, sm)
	require.NoError(t, err)
	op, err := auth.NewOperator("admin", "password", "")
	require.NoError(t, err)

	s := &Server{
		App:            app,
		Auth:           NewAuthHandlers(sm, op, app),
		Stats:          NewStatsHandlers(store, stats.NewOrganizationFilter(store, cfg.CorpFilter.Path), stats.NewFormatter(stats.Russian), sm, true),
		Health:         HealthHandler(store),
		SessionManager: sm,
		LoginLimiter:   middleware.NewRateLimiter(100, 100, false),
		StaticPath:     cfg.StaticPath,
	}
	return s.Routes()
}

type client struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func newClient(t *testing.T, h http.Handler) *client {
	return &client{t: t, handler: h, cookies: map[string]*http.Cookie{}}
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	if req.Method == http.MethodPost {
		req.Header.Set("Origin", "http://example.com")
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rr := httptest.NewRecorder()
	c.handler.ServeHTTP(rr, req)
	for _, ck := range rr.Result().Cookies() {
		c.cookies[ck.Name] = ck
	}
	return rr
}

func (c *client) csrfFromLoginPage() string {
	rr := c.do(httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(c.t, http.StatusOK, rr.Code)
	return csrfToken(c.t, rr.Body.String())
}

func csrfToken(t *testing.T, body string) string {
	t.Helper()
	start := strings.Index(body, "csrf=")
	require.True(t, start >= 0, body)
	rest := body[start+len("csrf="):]
	end := strings.Index(rest, ";")
	require.True(t, end > 0, body)
	return rest[:end]
}

func (c *client) login(username, password string) *httptest.ResponseRecorder {
	token := c.csrfFromLoginPage()
	form := url.Values{"username": {username}, "password": {password}, "csrf_token": {token}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func TestRoutesRequireAuthentication(t *testing.T) {
	c := newClient(t, testServer(t, &fakeStore{}))

	rr := c.do(httptest.NewRequest(http.MethodGet, validQuery, nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Требуется авторизация", decodeError(t, rr))

	rr = c.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}

func TestRoutesLoginFlow(t *testing.T) {
	c := newClient(t, testServer(t, &fakeStore{rows: sampleRows(), orgs: []string{"ООО Альфа"}}))

	rr := c.login("admin", "wrong")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Неверный логин или пароль")

	rr = c.login("admin", "password")
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	rr = c.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "dashboard admin filter=true")

	rr = c.do(httptest.NewRequest(http.MethodGet, validQuery+"&monthly=true", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"month_name":"Январь 2024"`)
}

func TestRoutesLoginRejectsCrossOrigin(t *testing.T) {
	c := newClient(t, testServer(t, &fakeStore{}))

	token := c.csrfFromLoginPage()
	form := url.Values{"username": {"admin"}, "password": {"password"}, "csrf_token": {token}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	req.Header.Set("Origin", "http://evil.example")
	rr := httptest.NewRecorder()
	c.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRoutesLoginRedirectsBack(t *testing.T) {
	c := newClient(t, testServer(t, &fakeStore{}))

	rr := c.do(httptest.NewRequest(http.MethodGet, "/?from=bookmark", nil))
	require.Equal(t, http.StatusSeeOther, rr.Code)

	rr = c.login("admin", "password")
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/?from=bookmark", rr.Header().Get("Location"))
}

func TestRoutesToggleRequiresCSRF(t *testing.T) {
	c := newClient(t, testServer(t, &fakeStore{}))
	require.Equal(t, http.StatusSeeOther, c.login("admin", "password").Code)

	rr := c.do(httptest.NewRequest(http.MethodPost, "/api/toggle-corp-filter", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)

	token := c.csrfFromDashboard()
	req := httptest.NewRequest(http.MethodPost, "/api/toggle-corp-filter", nil)
	req.Header.Set("X-CSRF-Token", token)
	rr = c.do(req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"success","filter_enabled":false}`, rr.Body.String())
}

func (c *client) csrfFromDashboard() string {
	rr := c.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(c.t, http.StatusOK, rr.Code)
	return csrfToken(c.t, rr.Body.String())
}

func TestRoutesLogout(t *testing.T) {
	c := newClient(t, testServer(t, &fakeStore{}))
	require.Equal(t, http.StatusSeeOther, c.login("admin", "password").Code)

	token := c.csrfFromDashboard()
	form := url.Values{"csrf_token": {token}}
	req := httptest.NewRequest(http.MethodPost, "/logout", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := c.do(req)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))

	rr = c.do(httptest.NewRequest(http.MethodGet, validQuery, nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
