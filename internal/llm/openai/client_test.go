package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("TUTOR_TEST_OPENAI_KEY", "sk-test")
	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "TUTOR_TEST_OPENAI_KEY", Model: "gpt-4o"})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{APIKeyEnv: "TUTOR_TEST_UNSET_KEY"})
	require.ErrorIs(t, err, domain.ErrCredentialsMissing)
}

func TestCompleteSendsSystemAndHistory(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"what is a list in python?"}}]}`))
	})

	hidden := domain.TextMessage(domain.RoleUser, "seed")
	hidden.Hidden = true
	out, err := c.Complete(context.Background(), domain.CompletionRequest{
		System:      "rephrase",
		Messages:    []domain.Message{hidden, domain.ImageMessage("what is this?", "https://img/x.png")},
		MaxTokens:   100,
		Temperature: 0.7,
	})
	require.NoError(t, err)
	require.Equal(t, "what is a list in python?", out)

	require.Equal(t, "gpt-4o", got["model"])
	require.EqualValues(t, 100, got["max_tokens"])
	require.EqualValues(t, 1, got["n"])
	require.Equal(t, false, got["stream"])

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 3)
	require.Equal(t, map[string]any{"role": "system", "content": "rephrase"}, msgs[0])
	require.Equal(t, map[string]any{"role": "user", "content": "seed"}, msgs[1])

	parts := msgs[2].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	require.Equal(t, map[string]any{"type": "text", "text": "what is this?"}, parts[0])
	require.Equal(t, map[string]any{"type": "image_url", "image_url": map[string]any{"url": "https://img/x.png"}}, parts[1])
}

func TestStreamDeliversDeltasInOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Stream)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range []string{"Let's ", "start", " OBJECTIVE_COMPLETED"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", d)
		}
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var deltas []string
	err := c.Stream(context.Background(), domain.CompletionRequest{MaxTokens: 1600}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Let's ", "start", " OBJECTIVE_COMPLETED"}, deltas)
}

func TestStreamCallbackErrorAborts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n")
	})
	stop := fmt.Errorf("stop")
	calls := 0
	err := c.Stream(context.Background(), domain.CompletionRequest{}, func(string) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, calls)
}

func TestStreamErrorEventFailsTheCall(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Lists are\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"error\":{\"message\":\"The server is overloaded\",\"type\":\"server_error\"}}\n\n")
	})
	var got string
	err := c.Stream(context.Background(), domain.CompletionRequest{}, func(d string) error {
		got += d
		return nil
	})
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	require.Equal(t, "The server is overloaded", streamErr.Message)
	require.Equal(t, "Lists are", got)
}

func TestStreamTruncatedBodyIsAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"half an ans\"}}]}\n\n")
	})
	err := c.Stream(context.Background(), domain.CompletionRequest{}, func(string) error { return nil })
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	finished := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"done\"},\"finish_reason\":\"stop\"}]}\n\n")
	})
	require.NoError(t, finished.Stream(context.Background(), domain.CompletionRequest{}, func(string) error { return nil }))
}

func TestErrorStatuses(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})
	_, err := c.Complete(context.Background(), domain.CompletionRequest{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	require.Equal(t, "overloaded", apiErr.Body)

	unauthorized := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})
	err = unauthorized.Stream(context.Background(), domain.CompletionRequest{}, func(string) error { return nil })
	require.ErrorIs(t, err, domain.ErrCredentialsMissing)
	require.ErrorAs(t, err, &apiErr)
}
