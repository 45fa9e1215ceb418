package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/nnikhil6/greenwave/internal/testutil"
)

func TestMonitorTiming(t *testing.T) {
	env := newTestEnv(t, true)
	seedDecisions(t, env, 3)

	rec := env.do(t, http.MethodGet, "/monitor/timing", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Assigned Green per Tick") {
		t.Error("page missing chart title")
	}
	for _, id := range []string{"oak-1st", "oak-2nd", "oak-3rd"} {
		if !strings.Contains(body, id) {
			t.Errorf("page missing series for %s", id)
		}
	}
}

func TestMonitorDensity(t *testing.T) {
	env := newTestEnv(t, true)
	seedDecisions(t, env, 3)

	rec := env.do(t, http.MethodGet, "/monitor/density", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "Corridor Density per Tick") {
		t.Error("page missing chart title")
	}
}

func TestMonitorEmptyWindow(t *testing.T) {
	env := newTestEnv(t, true)
	rec := env.do(t, http.MethodGet, "/monitor/timing", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestMonitorBadWindow(t *testing.T) {
	env := newTestEnv(t, true)
	for _, target := range []string{"/monitor/timing?window=0", "/monitor/timing?window=abc", "/monitor/density?window=10000"} {
		rec := env.do(t, http.MethodGet, target, nil)
		testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	}
}

func TestMonitorNoJournal(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(t, http.MethodGet, "/monitor/density", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusServiceUnavailable)
}
