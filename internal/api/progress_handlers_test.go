package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mfeldman486/resume-harvester/internal/progress/sinks"
)

// fakeRunSource serves canned runs without a live snapshot sink.
type fakeRunSource struct {
	runs []sinks.RunProgress
}

func (f *fakeRunSource) Runs() []sinks.RunProgress {
	return append([]sinks.RunProgress(nil), f.runs...)
}

func (f *fakeRunSource) Run(id string) (sinks.RunProgress, bool) {
	for _, run := range f.runs {
		if run.RunID == id {
			return run, true
		}
	}
	return sinks.RunProgress{}, false
}

func progressRouter(source RunSource) http.Handler {
	handler := NewProgressHandler(source, zap.NewNop())
	r := chi.NewRouter()
	r.Get("/progress", handler.ListRuns)
	r.Get("/progress/{run_id}", handler.GetRun)
	return r
}

func TestProgressHandlerListRuns(t *testing.T) {
	t.Parallel()

	first := uuid.NewString()
	second := uuid.NewString()
	source := &fakeRunSource{runs: []sinks.RunProgress{
		{RunID: second, Status: "running", StartedAt: time.Now()},
		{RunID: first, Status: "success", StartedAt: time.Now().Add(-time.Hour), Records: 12},
	}}

	req := httptest.NewRequest(http.MethodGet, "/progress", nil)
	rec := httptest.NewRecorder()
	progressRouter(source).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []sinks.RunProgress `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 2)
	require.Equal(t, second, body.Runs[0].RunID)
	require.Equal(t, int64(12), body.Runs[1].Records)
}

func TestProgressHandlerListRunsAppliesLimit(t *testing.T) {
	t.Parallel()

	source := &fakeRunSource{runs: []sinks.RunProgress{
		{RunID: uuid.NewString(), Status: "running"},
		{RunID: uuid.NewString(), Status: "success"},
		{RunID: uuid.NewString(), Status: "success"},
	}}

	req := httptest.NewRequest(http.MethodGet, "/progress?limit=2", nil)
	rec := httptest.NewRecorder()
	progressRouter(source).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []sinks.RunProgress `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 2)
}

func TestProgressHandlerListRunsInvalidLimit(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/progress?limit=zero", nil)
	rec := httptest.NewRecorder()
	progressRouter(&fakeRunSource{}).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid limit")
}

func TestProgressHandlerDisabledTracking(t *testing.T) {
	t.Parallel()

	router := progressRouter(nil)

	for _, path := range []string{"/progress", "/progress/" + uuid.NewString()} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		require.Contains(t, rec.Body.String(), "progress tracking disabled")
	}
}

func TestProgressHandlerGetRun(t *testing.T) {
	t.Parallel()

	id := uuid.NewString()
	source := &fakeRunSource{runs: []sinks.RunProgress{
		{RunID: id, Status: "success", Fetched: 3, Records: 3},
	}}

	req := httptest.NewRequest(http.MethodGet, "/progress/"+id, nil)
	rec := httptest.NewRecorder()
	progressRouter(source).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Run sinks.RunProgress `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, id, body.Run.RunID)
	require.Equal(t, int64(3), body.Run.Records)
}

func TestProgressHandlerGetRunNotFound(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/progress/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	progressRouter(&fakeRunSource{}).ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "run not found")
}

func TestProgressHandlerGetRunMalformedID(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/progress/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	progressRouter(&fakeRunSource{}).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid run_id")
}
