package gateway

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/flemzord/sitterd/internal/cron"
	"github.com/flemzord/sitterd/internal/maintenance"
)

func TestStatus_RequiresAuth(t *testing.T) {
	t.Parallel()

	h := newRouterGateway(&fakeRunner{}).buildRouter()
	rr := serve(t, h, http.MethodGet, "/status", "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestStatus_ReportsJobsAndSchedule(t *testing.T) {
	t.Parallel()

	last := time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)
	runner := &fakeRunner{status: []maintenance.Status{
		{Job: maintenance.JobExpireInviteCodes, LastRun: last, LastSource: "cron", LastCount: 2, Runs: 5},
		{Job: maintenance.JobNotifyOverdueTasks},
	}}
	g := newRouterGateway(runner)
	g.startedAt = time.Now().Add(-90 * time.Second)
	g.schedule = func() []cron.Entry {
		return []cron.Entry{{Job: maintenance.JobExpireInviteCodes, Schedule: "0 3 * * *"}}
	}

	rr := serve(t, g.buildRouter(), http.MethodGet, "/status", testSecret)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Uptime < 90 {
		t.Errorf("uptime = %v, want >= 90", resp.Uptime)
	}
	if len(resp.Jobs) != 2 || resp.Jobs[0].LastCount != 2 || !resp.Jobs[0].LastRun.Equal(last) {
		t.Errorf("jobs = %+v", resp.Jobs)
	}
	if len(resp.Schedule) != 1 || resp.Schedule[0].Schedule != "0 3 * * *" {
		t.Errorf("schedule = %+v", resp.Schedule)
	}
}
