package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/esimplanner/internal/catalog"
	"github.com/patrickwarner/esimplanner/internal/config"
	"github.com/patrickwarner/esimplanner/internal/db"
	"github.com/patrickwarner/esimplanner/internal/logic/ratelimit"
	"github.com/patrickwarner/esimplanner/internal/logic/search"
	"github.com/patrickwarner/esimplanner/internal/models"
	"github.com/patrickwarner/esimplanner/internal/observability"
	"github.com/patrickwarner/esimplanner/internal/planner"
)

func testPlans() []models.Plan {
	return []models.Plan{
		models.TestPlan("fr-3gb", "alpha", "fr", 3072, 7, 5),
		models.TestPlan("fr-1gb", "beta", "fr", 1024, 7, 2),
		models.TestPlan("de-2gb", "beta", "de", 2048, 7, 4),
	}
}

func newTestServer(t *testing.T, plans ...models.Plan) (*Server, *observability.MockMetricsRegistry) {
	t.Helper()
	metrics := observability.NewMockMetricsRegistry()
	svc := planner.NewService(models.NewTestCatalogStore(plans...), planner.DefaultOptions(), metrics)
	cfg := config.Load()
	src := &db.StaticSource{Plans: testPlans()}
	srv := NewServer(zap.NewNop(), svc, src, catalog.DefaultOverrides(), nil, metrics, cfg)
	return srv, metrics
}

func postOptimize(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/optimize", bytes.NewBufferString(body))
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestOptimizeHandler(t *testing.T) {
	srv, metrics := newTestServer(t, testPlans()...)
	h := srv.Router()

	rec := postOptimize(t, h, `{"trip":{"territory":"fr","days":7,"data_mb":3000}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp planner.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, planner.StatusOK, resp.Status)
	require.NotEmpty(t, resp.Solutions)
	assert.Equal(t, "fr-3gb", resp.Solutions[0].Purchases[0].Plan.PlanID)
	assert.Equal(t, 5.0, resp.Solutions[0].DisplayCost)
	assert.Equal(t, 1, metrics.Requests["optimize POST 200"])
}

func TestOptimizeHandlerMultiLeg(t *testing.T) {
	srv, _ := newTestServer(t, testPlans()...)
	body := `{"legs":[
		{"territory":"fr","start_day":0,"end_day":7,"data_mb":3000},
		{"territory":"de","start_day":7,"end_day":14,"data_mb":2000}
	]}`
	rec := postOptimize(t, srv.Router(), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp planner.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Solutions)
	best := resp.Solutions[0]
	assert.Equal(t, 9.0, best.CashCost)
	assert.Len(t, best.Legs, 2)
}

func TestOptimizeHandlerNoFeasibleSolution(t *testing.T) {
	srv, _ := newTestServer(t, testPlans()...)
	rec := postOptimize(t, srv.Router(), `{"trip":{"territory":"jp","days":5,"data_mb":1000}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp planner.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, planner.StatusNoFeasibleSolution, resp.Status)
	assert.Empty(t, resp.Solutions)
}

func TestOptimizeHandlerErrors(t *testing.T) {
	srv, _ := newTestServer(t, testPlans()...)
	h := srv.Router()

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"trip":`, http.StatusBadRequest},
		{"unknown field", `{"trip":{"territory":"fr","days":7,"data_mb":10},"bogus":1}`, http.StatusBadRequest},
		{"no legs", `{}`, http.StatusBadRequest},
		{"gap between legs", `{"legs":[{"territory":"fr","start_day":0,"end_day":3,"data_mb":10},{"territory":"de","start_day":4,"end_day":6,"data_mb":10}]}`, http.StatusBadRequest},
		{"negative data", `{"trip":{"territory":"fr","days":7,"data_mb":-5}}`, http.StatusBadRequest},
		{"bad limits", `{"trip":{"territory":"fr","days":7,"data_mb":10},"limits":{"top_n":0}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postOptimize(t, h, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			var er errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
			assert.NotEmpty(t, er.Error)
		})
	}
}

func TestOptimizeHandlerEmptyCatalog(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := postOptimize(t, srv.Router(), `{"trip":{"territory":"fr","days":7,"data_mb":3000}}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOptimizeHandlerRateLimited(t *testing.T) {
	srv, metrics := newTestServer(t, testPlans()...)
	srv.Limiter = ratelimit.NewClientLimiter(ratelimit.Config{Capacity: 1, RefillRate: 0, Enabled: true}, metrics)
	h := srv.Router()

	body := `{"trip":{"territory":"fr","days":7,"data_mb":3000}}`
	assert.Equal(t, http.StatusOK, postOptimize(t, h, body).Code)
	assert.Equal(t, http.StatusTooManyRequests, postOptimize(t, h, body).Code)
	assert.Equal(t, 1, metrics.RateLimitHits["optimize"])
}

func TestOptimizeErrorStatus(t *testing.T) {
	aborted := fmt.Errorf("%w: %w", search.ErrSearchAborted, context.DeadlineExceeded)
	cancelled := fmt.Errorf("%w: %w", search.ErrSearchAborted, context.Canceled)
	assert.Equal(t, http.StatusGatewayTimeout, optimizeErrorStatus(aborted))
	assert.Equal(t, http.StatusServiceUnavailable, optimizeErrorStatus(cancelled))
	assert.Equal(t, http.StatusInternalServerError, optimizeErrorStatus(errors.New("boom")))
}

func TestListPlansHandler(t *testing.T) {
	srv, _ := newTestServer(t, testPlans()...)
	h := srv.Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plans?territory=FR", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp plansResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plans?territory=fr,de", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plans?territory=jp", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Plans)
}

func TestGetPlanHandler(t *testing.T) {
	srv, _ := newTestServer(t, testPlans()...)
	h := srv.Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plans/fr-1gb", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var plan models.Plan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
	assert.Equal(t, "fr-1gb", plan.PlanID)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plans/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReloadHandler(t *testing.T) {
	srv, metrics := newTestServer(t)
	h := srv.Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reload", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp reloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Accepted)
	assert.Equal(t, 3, metrics.CatalogPlans)

	srv.Source = nil
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reload", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)

	_, err := srv.Reload(context.Background())
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Plans)
}

func TestClientID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", clientID(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", clientID(req))
}
