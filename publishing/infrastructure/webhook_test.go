package infrastructure

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Zer0phucks/devconsul/publishing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() domain.PublishRequest {
	return domain.PublishRequest{
		ScheduleID: "sched-1",
		ContentID:  "content-1",
		ProjectID:  "proj1",
		Platform:   "webhook",
		PublishAt:  time.Now().UTC(),
	}
}

func TestWebhookPublisher_SignsPayload(t *testing.T) {
	secret := "super-secret"
	var gotSignature string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Hub-Signature-256")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	publisher := NewWebhookPublisher(WebhookConfig{URL: server.URL, Secret: secret})
	result, err := publisher.Publish(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "webhook", result.Platform)
	assert.False(t, result.PublishedAt.IsZero())

	var decoded domain.PublishRequest
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, "sched-1", decoded.ScheduleID)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), gotSignature)
}

func TestWebhookPublisher_RetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	publisher := NewWebhookPublisher(WebhookConfig{URL: server.URL, MaxAttempts: 3})
	result, err := publisher.Publish(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestWebhookPublisher_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	publisher := NewWebhookPublisher(WebhookConfig{URL: server.URL, MaxAttempts: 2})
	_, err := publisher.Publish(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestWebhookPublisher_NoSignatureWithoutSecret(t *testing.T) {
	var gotSignature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Hub-Signature-256")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	publisher := NewWebhookPublisher(WebhookConfig{URL: server.URL})
	_, err := publisher.Publish(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Empty(t, gotSignature)
}
