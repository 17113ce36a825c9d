package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpzouying/reels-autopost/poster"
)

func TestWebhookSender_Notify(t *testing.T) {
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender, err := NewWebhookSender(srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// a cancelled attempt still reports
	sender.Notify(ctx, &poster.Report{AttemptID: "a-1", Outcome: poster.OutcomeStopped})

	assert.Equal(t, "attempt_finished", got.Event)
	require.NotNil(t, got.Report)
	assert.Equal(t, "a-1", got.Report.AttemptID)
	assert.Equal(t, poster.OutcomeStopped, got.Report.Outcome)
}

func TestWebhookSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sender, err := NewWebhookSender(srv.URL)
	require.NoError(t, err)

	err = sender.send(context.Background(), &poster.Report{})
	assert.Error(t, err)
}

func TestNewWebhookSender_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "ftp://example.com/hook", "http://", "::bad"} {
		_, err := NewWebhookSender(u)
		assert.Error(t, err, u)
	}
}
