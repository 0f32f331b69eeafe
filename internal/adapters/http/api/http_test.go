package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/sm64br/runwatch/internal/adapters/http/api"
	"github.com/sm64br/runwatch/pkg/metrics"
)

type mockDeps struct {
	ready bool
	stats map[string]interface{}
}

func (m *mockDeps) Ready() bool { return m.ready }

func (m *mockDeps) GetStats() map[string]interface{} { return m.stats }

type mockGateway struct {
	open bool
}

func (m *mockGateway) Open() bool { return m.open }

func newMux(deps api.Dependencies, gw api.GatewayChecker) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, gw).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	Convey("Given a registered server", t, func() {
		deps := &mockDeps{}
		gw := &mockGateway{}
		mux := newMux(deps, gw)

		Convey("Then /healthz always answers ok", func() {
			rec := do(mux, http.MethodGet, "/healthz")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("Then /healthz rejects writes", func() {
			rec := do(mux, http.MethodPost, "/healthz")
			So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("When startup has not finished", func() {
			rec := do(mux, http.MethodGet, "/readyz")

			Convey("Then /readyz is unavailable", func() {
				So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(rec.Body.String(), ShouldContainSubstring, "not_ready")
			})
		})

		Convey("When started but the gateway is closed", func() {
			deps.ready = true
			rec := do(mux, http.MethodGet, "/readyz")

			Convey("Then /readyz reports the gateway", func() {
				So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(rec.Body.String(), ShouldContainSubstring, "gateway_closed")
			})
		})

		Convey("When started with the gateway open", func() {
			deps.ready = true
			gw.open = true
			rec := do(mux, http.MethodGet, "/readyz")

			Convey("Then /readyz succeeds", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, `"status":"ready"`)
			})
		})
	})

	Convey("Given a server without a gateway", t, func() {
		mux := newMux(&mockDeps{ready: true}, nil)

		Convey("Then readiness depends on the service alone", func() {
			So(do(mux, http.MethodGet, "/readyz").Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestStats(t *testing.T) {
	Convey("Given a stats provider", t, func() {
		deps := &mockDeps{stats: map[string]interface{}{
			"started":   true,
			"sessions":  3,
			"feedState": "connected",
		}}
		mux := newMux(deps, nil)

		Convey("Then /stats renders it as json", func() {
			rec := do(mux, http.MethodGet, "/stats")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			So(rec.Header().Get("Cache-Control"), ShouldEqual, "no-store")

			var body map[string]interface{}
			So(json.Unmarshal(rec.Body.Bytes(), &body), ShouldBeNil)
			So(body["sessions"], ShouldEqual, float64(3))
			So(body["feedState"], ShouldEqual, "connected")
		})

		Convey("Then /stats only answers GET", func() {
			So(do(mux, http.MethodDelete, "/stats").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestMetricsEndpoint(t *testing.T) {
	Convey("Given recorded traffic", t, func() {
		mux := newMux(&mockDeps{}, nil)
		_ = do(mux, http.MethodGet, "/healthz")
		metrics.RecordRunAnnounced()

		Convey("Then /metrics exposes the custom registry", func() {
			rec := do(mux, http.MethodGet, "/metrics")
			So(rec.Code, ShouldEqual, http.StatusOK)
			body := rec.Body.String()
			So(strings.Contains(body, "runwatch_http_requests_total"), ShouldBeTrue)
			So(strings.Contains(body, "runwatch_runs_announced_total"), ShouldBeTrue)
		})
	})
}
