package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestObserveJob(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveJob("expire-invite-codes", OutcomeSuccess, 20*time.Millisecond, 3, 0)
	m.ObserveJob("expire-invite-codes", OutcomeSuccess, 10*time.Millisecond, 2, 0)
	m.ObserveJob("expire-invite-codes", OutcomeSkipped, 0, 0, 0)

	if got := counterValue(t, m.jobRuns.WithLabelValues("expire-invite-codes", OutcomeSuccess)); got != 2 {
		t.Errorf("success runs = %v, want 2", got)
	}
	if got := counterValue(t, m.jobRuns.WithLabelValues("expire-invite-codes", OutcomeSkipped)); got != 1 {
		t.Errorf("skipped runs = %v, want 1", got)
	}
	if got := counterValue(t, m.jobItems.WithLabelValues("expire-invite-codes")); got != 5 {
		t.Errorf("items = %v, want 5", got)
	}
}

func TestObserveNotificationAndDelivery(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveNotification(NotificationCreated)
	m.ObserveNotification(NotificationDuplicate)
	m.ObserveNotification(NotificationDuplicate)
	m.ObserveDelivery("webhook", nil)
	m.ObserveDelivery("webhook", errors.New("boom"))
	m.ObserveAuthFailure()

	if got := counterValue(t, m.notifications.WithLabelValues(NotificationDuplicate)); got != 2 {
		t.Errorf("duplicates = %v, want 2", got)
	}
	if got := counterValue(t, m.deliveries.WithLabelValues("webhook", OutcomeFailure)); got != 1 {
		t.Errorf("failed deliveries = %v, want 1", got)
	}
	if got := counterValue(t, m.authFailures); got != 1 {
		t.Errorf("auth failures = %v, want 1", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.ObserveJob("x", OutcomeFailure, time.Second, 0, 1)
	m.ObserveNotification(NotificationError)
	m.ObserveDelivery("log", nil)
	m.ObserveAuthFailure()
	if m.Registry() != nil {
		t.Error("nil metrics returned a registry")
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveJob("delete-old-notifications", OutcomeSuccess, time.Millisecond, 4, 0)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`sitterd_job_runs_total{job="delete-old-notifications",outcome="success"} 1`,
		`sitterd_job_items_total{job="delete-old-notifications"} 4`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
