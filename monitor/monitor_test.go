package monitor

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/observability"
	"github.com/kbukum/flowkit/pipeline"
	"github.com/kbukum/flowkit/version"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(r *Registry) *gin.Engine {
	engine := gin.New()
	Register(engine, r)
	return engine
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	return rr
}

// runPipeline runs slice -> double and returns both nodes after completion.
func runPipeline(t *testing.T, failAt int) (*pipeline.Source[int], *pipeline.Stage[int, int]) {
	t.Helper()
	src := pipeline.FromSlice([]int{1, 2, 3, 4})
	double := pipeline.NewStage("double", pipeline.Sync(func(v int) (int, error) {
		if v == failAt {
			return 0, stderrors.New("boom")
		}
		return v * 2, nil
	}))
	if err := pipeline.ConnectOneToOne[int](src, double); err != nil {
		t.Fatalf("connect: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = pipeline.Collect[int](ctx, double)
	return src, double
}

func TestRegistry(t *testing.T) {
	src := pipeline.FromSlice([]int{1})
	stage := pipeline.NewStage("noop", pipeline.Sync(func(v int) (int, error) { return v, nil }))

	r := NewRegistry("svc", "1.0.0")
	r.Add(src, stage, nil, src)

	nodes := r.Nodes()
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	if nodes[0].ID() != src.ID() || nodes[1].ID() != stage.ID() {
		t.Error("nodes should keep registration order")
	}
	if n, ok := r.Get(stage.ID()); !ok || n.Name() != "noop" {
		t.Errorf("Get returned %v, %v", n, ok)
	}

	if !r.Remove(src.ID()) {
		t.Error("expected Remove to report the node")
	}
	if r.Remove(src.ID()) {
		t.Error("second Remove should report false")
	}
	if got := r.Stats(); len(got) != 1 || got[0].Name != "noop" {
		t.Errorf("unexpected stats after remove: %+v", got)
	}
}

func TestListStages(t *testing.T) {
	src, double := runPipeline(t, -1)
	r := NewRegistry("svc", "1.0.0")
	r.Add(src, double)

	rr := get(t, newRouter(r), "/stages")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body struct {
		Data []pipeline.Stats `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Data) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(body.Data))
	}
	if body.Data[1].Name != "double" || body.Data[1].Emitted != 4 {
		t.Errorf("unexpected stage stats: %+v", body.Data[1])
	}
	if body.Data[1].State != pipeline.StateCompleted {
		t.Errorf("expected completed, got %s", body.Data[1].State)
	}
}

func TestGetStage(t *testing.T) {
	src, double := runPipeline(t, -1)
	r := NewRegistry("svc", "1.0.0")
	r.Add(src, double)
	router := newRouter(r)

	t.Run("found", func(t *testing.T) {
		rr := get(t, router, "/stages/"+double.ID())
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var body struct {
			Data pipeline.Stats `json:"data"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if body.Data.ID != double.ID() || body.Data.Received != 4 {
			t.Errorf("unexpected stats: %+v", body.Data)
		}
	})

	t.Run("not found", func(t *testing.T) {
		rr := get(t, router, "/stages/missing")
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
		var body errors.ErrorResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if body.Error.Code != errors.ErrCodeNotFound {
			t.Errorf("expected NOT_FOUND, got %s", body.Error.Code)
		}
	})
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		failAt     int
		wantCode   int
		wantStatus observability.HealthStatus
	}{
		{"all completed", -1, http.StatusOK, observability.HealthStatusUp},
		{"stage failed", 2, http.StatusServiceUnavailable, observability.HealthStatusDown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src, double := runPipeline(t, tc.failAt)
			r := NewRegistry("svc", "1.0.0")
			r.Add(src, double)

			rr := get(t, newRouter(r), "/health")
			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rr.Code)
			}
			var body struct {
				Service    string                     `json:"service"`
				Status     observability.HealthStatus `json:"status"`
				Timestamp  string                     `json:"timestamp"`
				Components []observability.Health     `json:"components"`
				Build      version.Info               `json:"build"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if body.Status != tc.wantStatus {
				t.Errorf("expected status %s, got %s", tc.wantStatus, body.Status)
			}
			if body.Service != "svc" || body.Timestamp == "" || len(body.Components) != 2 {
				t.Errorf("unexpected body: %+v", body)
			}
			if body.Build != version.Get() {
				t.Errorf("expected build %+v, got %+v", version.Get(), body.Build)
			}
		})
	}
}

func TestServerStartStop(t *testing.T) {
	cfg := Config{Addr: "127.0.0.1:0"}
	cfg.ApplyDefaults()

	r := NewRegistry("svc", "1.0.0")
	srv := NewServer(cfg, r)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/stages")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Addr != "localhost:9090" || cfg.ReadTimeout != 10*time.Second || cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestStreamStages(t *testing.T) {
	t.Run("ends once every stage completed", func(t *testing.T) {
		src, double := runPipeline(t, -1)
		r := NewRegistry("svc", "1.0.0")
		r.Add(src, double)

		rr := get(t, newRouter(r), "/stages/stream?interval=100ms")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
			t.Errorf("unexpected content type %q", ct)
		}
		body := rr.Body.String()
		if !strings.Contains(body, "event:stats") || !strings.Contains(body, "event:done") {
			t.Errorf("expected stats and done events, got %q", body)
		}
		if !strings.Contains(body, `"name":"double"`) {
			t.Errorf("stats event should carry stage stats, got %q", body)
		}
	})

	t.Run("stops when the client leaves", func(t *testing.T) {
		r := NewRegistry("svc", "1.0.0")
		r.Add(pipeline.FromSlice([]int{1}))

		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/stages/stream?interval=100ms", http.NoBody).WithContext(ctx)
		newRouter(r).ServeHTTP(rr, req)

		if n := strings.Count(rr.Body.String(), "event:stats"); n < 2 {
			t.Errorf("expected repeated stats events, got %d", n)
		}
		if strings.Contains(rr.Body.String(), "event:done") {
			t.Error("an unfinished pipeline should not report done")
		}
	})

	t.Run("rejects a short interval", func(t *testing.T) {
		rr := get(t, newRouter(NewRegistry("svc", "1.0.0")), "/stages/stream?interval=1ms")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})
}
