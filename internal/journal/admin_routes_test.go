package journal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The debug mux gates remote callers, so these requests come from loopback.
func debugRequest(mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "127.0.0.1:54321"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAttachAdminRoutesRegistration(t *testing.T) {
	j := newTestJournal(t)
	mux := http.NewServeMux()
	j.AttachAdminRoutes(mux)

	for _, path := range []string{"/debug/", "/debug/tailsql/", "/debug/backup", "/debug/migrations"} {
		rec := debugRequest(mux, path)
		assert.NotEqual(t, http.StatusNotFound, rec.Code, "route %s not registered", path)
	}
}

func TestMigrationStatusRoute(t *testing.T) {
	j := newTestJournal(t)
	mux := http.NewServeMux()
	j.AttachAdminRoutes(mux)

	rec := debugRequest(mux, "/debug/migrations")
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))

	latest, err := GetLatestMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, float64(latest), status["current_version"])
	assert.Equal(t, float64(latest), status["latest_version"])
	assert.Equal(t, false, status["dirty"])
	assert.Equal(t, true, status["schema_migrations_exists"])
}

func TestBackupRoute(t *testing.T) {
	j := newTestJournal(t)
	require.NoError(t, j.RecordSensorLine("station-1", "reading", []byte(`{"count":3}`)))

	mux := http.NewServeMux()
	j.AttachAdminRoutes(mux)

	rec := debugRequest(mux, "/debug/backup")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "greenwave-backup-")
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.NotZero(t, rec.Body.Len())
}
