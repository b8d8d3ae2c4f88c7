package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubricguard/rubricguard/catalog"
)

// testProvider is a minimal wire format for exercising the client: the
// request body is the prompt, the response body is {"text": "..."}.
type testProvider struct{}

func (p *testProvider) Name() string                      { return "test" }
func (p *testProvider) BuildURL(baseURL, _ string) string { return baseURL + "/judge" }
func (p *testProvider) SetHeaders(req *http.Request)      { req.Header.Set("X-Test", "1") }

func (p *testProvider) BuildRequestBody(model, prompt string, temperature *float64) ([]byte, error) {
	return json.Marshal(map[string]string{"model": model, "prompt": prompt})
}

func (p *testProvider) ParseResponse(body []byte) (string, error) {
	var resp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

func init() {
	RegisterProvider(&testProvider{})
}

func testRequest() Request {
	return Request{
		SubmissionText: "The firm should pivot to subscriptions.",
		Criterion: catalog.Criterion{
			ID:        "C1",
			Name:      "Argument Clarity",
			MaxPoints: 25,
		},
		Score:       20,
		Explanation: "Clear thesis stated in the first sentence.",
	}
}

// judgmentResponse wraps a judgment JSON payload in the test provider's
// response envelope.
func judgmentResponse(t *testing.T, status string) string {
	t.Helper()
	payload := fmt.Sprintf(`{"status": %q, "referencedExcerpt": "The firm should pivot to subscriptions.", "reasoning": "Direct match.", "suggestedRefinement": ""}`, status)
	out, err := json.Marshal(map[string]string{"text": payload})
	require.NoError(t, err)
	return string(out)
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Millisecond,
	}
}

func TestClientJudge(t *testing.T) {
	var gotBody struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/judge", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "1", r.Header.Get("X-Test"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, judgmentResponse(t, "Supported"))
	}))
	defer server.Close()

	client := NewClient("test", server.URL, "test-model", WithRetryConfig(fastRetry()))

	judgment, err := client.Judge(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusSupported, judgment.Status)
	assert.Equal(t, "The firm should pivot to subscriptions.", judgment.ReferencedExcerpt)

	assert.Equal(t, "test-model", gotBody.Model)
	assert.Contains(t, gotBody.Prompt, "Argument Clarity")
	assert.Contains(t, gotBody.Prompt, "20")
	assert.Contains(t, gotBody.Prompt, "Clear thesis stated in the first sentence.")
}

func TestClientRetriesTransientErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, judgmentResponse(t, "Partially Supported"))
	}))
	defer server.Close()

	client := NewClient("test", server.URL, "test-model", WithRetryConfig(fastRetry()))

	judgment, err := client.Judge(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallySupported, judgment.Status)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClientExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient("test", server.URL, "test-model", WithRetryConfig(fastRetry()))

	_, err := client.Judge(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClientFatalErrorsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient("test", server.URL, "test-model", WithRetryConfig(fastRetry()))

	_, err := client.Judge(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClientMalformedJudgment(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "not JSON", text: "I believe the justification is supported."},
		{name: "unknown status", text: `{"status": "Maybe", "reasoning": "unsure"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				out, err := json.Marshal(map[string]string{"text": tt.text})
				require.NoError(t, err)
				w.Write(out)
			}))
			defer server.Close()

			client := NewClient("test", server.URL, "test-model", WithRetryConfig(fastRetry()))

			_, err := client.Judge(context.Background(), testRequest())
			require.Error(t, err)
			assert.True(t, IsFatal(err))
		})
	}
}

func TestClientRequiresSubmissionAndExplanation(t *testing.T) {
	client := NewClient("test", "http://unused", "test-model")

	req := testRequest()
	req.SubmissionText = ""
	_, err := client.Judge(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "submission text")

	req = testRequest()
	req.Explanation = ""
	_, err = client.Judge(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "explanation")
}

func TestClientUnknownProvider(t *testing.T) {
	client := NewClient("nope", "http://unused", "test-model", WithRetryConfig(fastRetry()))

	_, err := client.Judge(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestClientContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient("test", server.URL, "test-model", WithRetryConfig(RetryConfig{
		MaxAttempts:       5,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        time.Second,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Judge(ctx, testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCalculateBackoff(t *testing.T) {
	client := NewClient("test", "http://unused", "test-model", WithRetryConfig(RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        15 * time.Second,
	}))

	// Jitter is +/- 25%, so each attempt stays within a known band.
	for attempt, base := range map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
	} {
		got := client.calculateBackoff(attempt)
		assert.GreaterOrEqual(t, got, time.Duration(float64(base)*0.75))
		assert.LessOrEqual(t, got, time.Duration(float64(base)*1.25))
	}
}
