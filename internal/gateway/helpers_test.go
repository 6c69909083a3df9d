package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/flemzord/sitterd/internal/maintenance"
)

const testSecret = "s3cret-cron-token"

// fakeRunner records triggers and answers with canned results.
type fakeRunner struct {
	result maintenance.Result
	err    error
	status []maintenance.Status

	mu    sync.Mutex
	calls []string
}

func (f *fakeRunner) Run(_ context.Context, name, source string) (maintenance.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name+"/"+source)
	f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeRunner) Status() []maintenance.Status { return f.status }

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

// newRouterGateway returns a gateway ready for buildRouter, without a
// listener.
func newRouterGateway(runner JobRunner) *Gateway {
	g := &Gateway{
		logger: slog.New(slog.DiscardHandler),
		runner: runner,
	}
	g.config.CronSecret = testSecret
	g.config.defaults()
	return g
}

func serve(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return body
}
