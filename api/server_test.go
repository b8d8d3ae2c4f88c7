package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubricguard/rubricguard/catalog"
	"github.com/rubricguard/rubricguard/dispatch"
	"github.com/rubricguard/rubricguard/judge"
	"github.com/rubricguard/rubricguard/workspace"
)

type instantJudge struct{}

func (instantJudge) Judge(ctx context.Context, req judge.Request) (*judge.Judgment, error) {
	return &judge.Judgment{Status: judge.StatusSupported, Reasoning: "ok"}, nil
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := NewServer(StaticSource{Catalog: catalog.Seed()}, instantJudge{}, workspace.Config{
		Dispatch: dispatch.Config{DebounceWindow: 10 * time.Millisecond},
	}, nil)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func startSession(t *testing.T, ts *httptest.Server) sessionResp {
	t.Helper()
	resp := doJSON(t, ts, http.MethodPost, "/session", map[string]string{"assignment_id": "A1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[sessionResp](t, resp)
}

// gradeCurrent fills every criterion of the current submission.
func gradeCurrent(t *testing.T, ts *httptest.Server, criteria []catalog.Criterion) {
	t.Helper()
	for _, c := range criteria {
		resp := doJSON(t, ts, http.MethodPatch, "/session/criteria/"+c.ID, map[string]string{
			"score":       "15",
			"explanation": "The submission addresses this criterion adequately.",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestHealthz(t *testing.T) {
	ts := testServer(t)

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListAssignments(t *testing.T) {
	ts := testServer(t)

	resp, err := ts.Client().Get(ts.URL + "/assignments")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	assignments := decode[[]catalog.Assignment](t, resp)
	require.Len(t, assignments, 1)
	assert.Equal(t, "A1", assignments[0].ID)
	assert.Equal(t, "BUS302", assignments[0].Course)
}

func TestStartSession(t *testing.T) {
	ts := testServer(t)

	sess := startSession(t, ts)
	assert.NotEmpty(t, sess.SessionID)
	assert.Equal(t, "A1", sess.Assignment.ID)
	assert.Equal(t, 0, sess.Position)
	assert.Equal(t, 3, sess.Total)
	assert.Equal(t, "S1", sess.Submission.ID)
	assert.Len(t, sess.Criteria, 4)
	assert.Len(t, sess.Graded.Criteria, 4)
	assert.False(t, sess.Complete)

	for _, gc := range sess.Graded.Criteria {
		assert.Nil(t, gc.Score)
	}
	for _, phase := range sess.Phases {
		assert.Equal(t, dispatch.PhaseUnvalidated, phase)
	}
}

func TestStartSessionErrors(t *testing.T) {
	ts := testServer(t)

	resp := doJSON(t, ts, http.MethodPost, "/session", map[string]string{"assignment_id": "A9"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodPost, "/session", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestStartSessionReplacesActive(t *testing.T) {
	ts := testServer(t)

	first := startSession(t, ts)
	second := startSession(t, ts)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	resp, err := ts.Client().Get(ts.URL + "/session")
	require.NoError(t, err)
	sess := decode[sessionResp](t, resp)
	assert.Equal(t, second.SessionID, sess.SessionID)
}

func TestSessionRequiredEndpoints(t *testing.T) {
	ts := testServer(t)

	for _, ep := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/session"},
		{http.MethodGet, "/session/analytics"},
		{http.MethodPost, "/session/next"},
		{http.MethodPost, "/session/previous"},
		{http.MethodPost, "/session/finalize"},
		{http.MethodPatch, "/session/criteria/C1"},
		{http.MethodPost, "/session/criteria/C1/highlight"},
		{http.MethodDelete, "/session"},
	} {
		resp := doJSON(t, ts, ep.method, ep.path, map[string]string{})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "%s %s", ep.method, ep.path)
		resp.Body.Close()
	}
}

func TestUpdateCriterion(t *testing.T) {
	ts := testServer(t)
	startSession(t, ts)

	resp := doJSON(t, ts, http.MethodPatch, "/session/criteria/C1", map[string]string{
		"score":       "20",
		"explanation": "Clear thesis in the opening paragraph.",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	update := decode[updateCriterionResp](t, resp)
	assert.Nil(t, update.Alert)

	resp, err := ts.Client().Get(ts.URL + "/session")
	require.NoError(t, err)
	sess := decode[sessionResp](t, resp)
	require.NotNil(t, sess.Graded.Criteria[0].Score)
	assert.Equal(t, 20.0, *sess.Graded.Criteria[0].Score)
}

func TestUpdateCriterionUnknown(t *testing.T) {
	ts := testServer(t)
	startSession(t, ts)

	resp := doJSON(t, ts, http.MethodPatch, "/session/criteria/C9", map[string]string{
		"score":       "20",
		"explanation": "Clear thesis.",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestConsistencyAlertOverHTTP(t *testing.T) {
	ts := testServer(t)
	sess := startSession(t, ts)

	// Grade S1 and S2 uniformly, then propose an outlier on S3.
	for i := 0; i < 2; i++ {
		gradeCurrent(t, ts, sess.Criteria)
		resp := doJSON(t, ts, http.MethodPost, "/session/next", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp := doJSON(t, ts, http.MethodPatch, "/session/criteria/C1", map[string]string{
		"score":       "2",
		"explanation": "No discernible thesis anywhere.",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	update := decode[updateCriterionResp](t, resp)
	require.NotNil(t, update.Alert)
	assert.Equal(t, "C1", update.Alert.CriterionID)
	assert.Equal(t, 15.0, update.Alert.Mean)
	assert.Contains(t, update.Alert.Message, "session average of 15.0")
}

func TestNavigation(t *testing.T) {
	ts := testServer(t)
	sess := startSession(t, ts)

	// Advancing an incomplete submission conflicts.
	resp := doJSON(t, ts, http.MethodPost, "/session/next", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Stepping back from the first submission conflicts.
	resp = doJSON(t, ts, http.MethodPost, "/session/previous", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	gradeCurrent(t, ts, sess.Criteria)
	resp = doJSON(t, ts, http.MethodPost, "/session/next", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	next := decode[sessionResp](t, resp)
	assert.Equal(t, 1, next.Position)
	assert.Equal(t, "S2", next.Submission.ID)

	resp = doJSON(t, ts, http.MethodPost, "/session/previous", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	prev := decode[sessionResp](t, resp)
	assert.Equal(t, 0, prev.Position)
	assert.True(t, prev.Complete)
}

func TestAttachHighlight(t *testing.T) {
	ts := testServer(t)
	startSession(t, ts)

	resp := doJSON(t, ts, http.MethodPost, "/session/criteria/C1/highlight", map[string]string{
		"excerpt": "recurring revenue streams",
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	getResp, err := ts.Client().Get(ts.URL + "/session")
	require.NoError(t, err)
	sess := decode[sessionResp](t, getResp)
	assert.Equal(t, "recurring revenue streams", sess.Graded.Criteria[0].HighlightedExcerpt)
}

func TestAnalyticsEndpoint(t *testing.T) {
	ts := testServer(t)
	sess := startSession(t, ts)
	gradeCurrent(t, ts, sess.Criteria)

	resp, err := ts.Client().Get(ts.URL + "/session/analytics")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary struct {
		SubmissionsGraded int     `json:"submissionsGraded"`
		AverageScore      float64 `json:"averageScore"`
		Drift             string  `json:"drift"`
		Timeline          []struct {
			SubmissionID string  `json:"submissionId"`
			Total        float64 `json:"total"`
			Complete     bool    `json:"complete"`
		} `json:"timeline"`
	}
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))

	assert.Equal(t, 3, summary.SubmissionsGraded)
	require.Len(t, summary.Timeline, 3)
	assert.Equal(t, 60.0, summary.Timeline[0].Total)
	assert.True(t, summary.Timeline[0].Complete)
	assert.False(t, summary.Timeline[1].Complete)
}

func TestFinalizeFlow(t *testing.T) {
	ts := testServer(t)
	sess := startSession(t, ts)

	// Finalizing before the last submission conflicts.
	resp := doJSON(t, ts, http.MethodPost, "/session/finalize", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	for i := 0; i < 2; i++ {
		gradeCurrent(t, ts, sess.Criteria)
		resp := doJSON(t, ts, http.MethodPost, "/session/next", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
	gradeCurrent(t, ts, sess.Criteria)

	resp = doJSON(t, ts, http.MethodPost, "/session/finalize", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	final := decode[finalizeResp](t, resp)
	require.Len(t, final.GradedSubmissions, 3)
	require.NotNil(t, final.Summary)
	assert.Equal(t, 3, final.Summary.SubmissionsGraded)

	// Writes after finalization conflict.
	resp = doJSON(t, ts, http.MethodPatch, "/session/criteria/C1", map[string]string{
		"score":       "10",
		"explanation": "Changed my mind about this one.",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestCloseSession(t *testing.T) {
	ts := testServer(t)
	startSession(t, ts)

	resp := doJSON(t, ts, http.MethodDelete, "/session", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	getResp, err := ts.Client().Get(ts.URL + "/session")
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := testServer(t)

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "rubricguard_validations_total")
}
