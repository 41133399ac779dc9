package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWebhookDelivererPostsMessage(t *testing.T) {
	var got deliverRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	deliverer := NewWebhookDeliverer(server.URL)
	err := deliverer.Deliver(context.Background(), &Message{
		TenantID:    "tenant-1",
		Platform:    "twitch",
		RecipientID: "viewer-42",
		ChannelID:   "channel-1",
		Body:        "you earned 250 coins",
	})
	require.NoError(t, err)
	require.Equal(t, "viewer-42", got.RecipientID)
	require.Equal(t, "you earned 250 coins", got.Body)
}

func TestWebhookDelivererGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	deliverer := NewWebhookDeliverer(server.URL)
	err := deliverer.Deliver(context.Background(), &Message{Body: "hello"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}
