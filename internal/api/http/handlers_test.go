package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firedesk/firedesk/internal/domain/instance"
	"github.com/firedesk/firedesk/internal/domain/process"
	"github.com/firedesk/firedesk/internal/domain/profile"
	"github.com/firedesk/firedesk/internal/infrastructure/monitoring"
	"github.com/firedesk/firedesk/internal/providers/clipboard"
	"github.com/firedesk/firedesk/internal/providers/proxycheck"
	"github.com/firedesk/firedesk/internal/shared/paths"
	"github.com/firedesk/firedesk/internal/shared/types"
)

// Prometheus collectors register globally, so the test binary shares one set.
var testMetrics = monitoring.NewMetrics()

type stubSupervisor struct {
	mu      sync.Mutex
	running map[string]bool
}

func (s *stubSupervisor) OnExit(fn process.ExitFunc) {}

func (s *stubSupervisor) Start(ctx context.Context, inst *types.Instance) (*process.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[inst.ID] = true
	return &process.Handle{InstanceID: inst.ID, ProfilePath: inst.ProfilePath, PID: 4242}, nil
}

func (s *stubSupervisor) Stop(ctx context.Context, inst *types.Instance, grace time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, inst.ID)
	return nil
}

func (s *stubSupervisor) IsRunning(ctx context.Context, instanceID, profilePath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[instanceID]
}

func (s *stubSupervisor) CheckDaemon(ctx context.Context, pattern string) bool {
	return true
}

func setupRouter(t *testing.T) (*gin.Engine, *instance.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	layout := paths.New(t.TempDir())
	store, err := instance.Open(layout.InstancesFile())
	require.NoError(t, err)

	sup := &stubSupervisor{running: make(map[string]bool)}
	mgr := instance.NewManager(store, profile.New(nil), sup, layout, instance.DefaultOptions(), nil)
	h := NewHandlers(mgr, clipboard.New(":9", nil), proxycheck.New(nil), sup, testMetrics, layout)

	r := gin.New()
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/logs", h.TailLog)
	r.GET("/instances", h.ListInstances)
	r.POST("/instances", h.CreateInstance)
	r.POST("/instances/autostart", h.Autostart)
	r.GET("/instances/:id", h.GetInstance)
	r.PUT("/instances/:id", h.UpdateInstance)
	r.DELETE("/instances/:id", h.DeleteInstance)
	r.POST("/instances/:id/start", h.StartInstance)
	r.POST("/instances/:id/stop", h.StopInstance)
	r.POST("/instances/:id/proxy-check", h.ProxyCheck)
	r.GET("/instances/:id/export", h.ExportInstance)
	return r, mgr
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createInstance(t *testing.T, r *gin.Engine, name string) types.Instance {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/instances", types.CreateRequest{Name: name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var inst types.Instance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inst))
	return inst
}

func TestRootAndHealth(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "firedesk")

	w = doJSON(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}

func TestCreateAndGet(t *testing.T) {
	r, _ := setupRouter(t)

	inst := createInstance(t, r, "work")
	assert.NotEmpty(t, inst.ID)
	assert.Equal(t, types.StateStopped, inst.ObservedState)

	w := doJSON(t, r, http.MethodGet, "/instances/"+inst.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/instances", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), inst.ID)
}

func TestCreateValidationError(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodPost, "/instances", map[string]any{
		"name":  "bad proxy",
		"proxy": map[string]any{"type": "http", "host": "p.example.com", "port": 99999},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"field":"proxy.port"`)
}

func TestGetMissingIs404(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodGet, "/instances/inst_missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartStopRoundTrip(t *testing.T) {
	r, _ := setupRouter(t)
	inst := createInstance(t, r, "work")

	w := doJSON(t, r, http.MethodPost, "/instances/"+inst.ID+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"observed_state":"running"`)

	w = doJSON(t, r, http.MethodPost, "/instances/"+inst.ID+"/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"observed_state":"stopped"`)
}

func TestUpdateVersionConflictIs409(t *testing.T) {
	r, _ := setupRouter(t)
	inst := createInstance(t, r, "work")

	w := doJSON(t, r, http.MethodPut, "/instances/"+inst.ID, map[string]any{
		"name":    "renamed",
		"version": inst.Version + 7,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdateEmptyPatchIs400(t *testing.T) {
	r, _ := setupRouter(t)
	inst := createInstance(t, r, "work")

	w := doJSON(t, r, http.MethodPut, "/instances/"+inst.ID, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "patch", body["field"])
}

func TestDeleteRunningIs409(t *testing.T) {
	r, _ := setupRouter(t)
	inst := createInstance(t, r, "work")

	doJSON(t, r, http.MethodPost, "/instances/"+inst.ID+"/start", nil)

	w := doJSON(t, r, http.MethodDelete, "/instances/"+inst.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/instances/"+inst.ID+"?force=true", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/instances/"+inst.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAutostart(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodPost, "/instances", types.CreateRequest{Name: "auto", AutoStart: true})
	require.Equal(t, http.StatusCreated, w.Code)
	createInstance(t, r, "manual")

	w = doJSON(t, r, http.MethodPost, "/instances/autostart", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result instance.AutostartResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Len(t, result.Started, 1)
	assert.Empty(t, result.Failed)
}

func TestProxyCheckWithoutProxyIs400(t *testing.T) {
	r, _ := setupRouter(t)
	inst := createInstance(t, r, "work")

	w := doJSON(t, r, http.MethodPost, "/instances/"+inst.ID+"/proxy-check", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportStoppedInstance(t *testing.T) {
	r, _ := setupRouter(t)
	inst := createInstance(t, r, "work")

	w := doJSON(t, r, http.MethodGet, "/instances/"+inst.ID+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/gzip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), inst.ID)
	assert.NotZero(t, w.Body.Len())
}

func TestExportRunningIs409(t *testing.T) {
	r, _ := setupRouter(t)
	inst := createInstance(t, r, "work")

	doJSON(t, r, http.MethodPost, "/instances/"+inst.ID+"/start", nil)

	w := doJSON(t, r, http.MethodGet, "/instances/"+inst.ID+"/export", nil)
	// Conflict is detected before any bytes are written.
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTailLogMissingFile(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodGet, "/logs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"lines":[]`)
}

func TestTailLogRejectsBadCount(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodGet, "/logs?lines=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConcurrentStartRequests(t *testing.T) {
	r, _ := setupRouter(t)
	inst := createInstance(t, r, "work")

	var wg sync.WaitGroup
	codes := make([]int, 8)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/instances/%s/start", inst.ID), nil)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	for _, code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
}
