package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleybot/parley/internal/domain"
	"github.com/parleybot/parley/internal/store"
)

func seedConversation(t *testing.T, cs *store.ConversationStore) string {
	t.Helper()
	id, err := cs.CreateConversation(
		domain.BotConfig{Name: "Ava", SystemPrompt: "pa", Model: "gpt-4o"},
		domain.BotConfig{Name: "Bo", SystemPrompt: "pb", Model: "gpt-4o"},
		"test chat",
	)
	require.NoError(t, err)

	_, err = cs.AppendMessage(id, "Ava", "Hello there", 0, 0, decimal.Zero)
	require.NoError(t, err)
	_, err = cs.AppendMessage(id, "Bo", "Hi back", 10, 5, decimal.RequireFromString("0.001"))
	require.NoError(t, err)
	return id
}

func TestHealthEndpoint(t *testing.T) {
	_, _, ts := testStack(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	// Public endpoint only returns status
	assert.Empty(t, health.Version)
}

func TestNotFoundEndpoint(t *testing.T) {
	_, _, ts := testStack(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestModelsEndpoint(t *testing.T) {
	_, _, ts := testStack(t)

	resp, err := http.Get(ts.URL + "/api/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Models []string `json:"models"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Models, "gpt-4o")
}

func TestListConversationsEndpoint(t *testing.T) {
	_, cs, ts := testStack(t)
	seedConversation(t, cs)

	resp, err := http.Get(ts.URL + "/api/conversations")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Conversations []domain.Conversation `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Conversations, 1)
	assert.Equal(t, "test chat", body.Conversations[0].Title)
}

func TestGetConversationEndpoint(t *testing.T) {
	_, cs, ts := testStack(t)
	id := seedConversation(t, cs)

	resp, err := http.Get(ts.URL + "/api/conversations/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Conversation domain.Conversation `json:"conversation"`
		Messages     []domain.Message    `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, id, body.Conversation.ID)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "Hello there", body.Messages[0].Content)
}

func TestGetConversationNotFound(t *testing.T) {
	_, _, ts := testStack(t)

	resp, err := http.Get(ts.URL + "/api/conversations/no-such-id")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatsEndpoint(t *testing.T) {
	_, cs, ts := testStack(t)
	id := seedConversation(t, cs)

	resp, err := http.Get(ts.URL + "/api/conversations/" + id + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats domain.TokenStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, uint64(15), stats.TotalTokens)
	assert.Contains(t, stats.PerSpeaker, "Bo")
}

func TestExportEndpointCSV(t *testing.T) {
	_, cs, ts := testStack(t)
	id := seedConversation(t, cs)

	resp, err := http.Get(ts.URL + "/api/conversations/" + id + "/export?format=csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".csv")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Timestamp,Bot,Message", lines[0])
	assert.Contains(t, lines[1], "Hello there")
}

func TestExportEndpointDefaultTXT(t *testing.T) {
	_, cs, ts := testStack(t)
	id := seedConversation(t, cs)

	resp, err := http.Get(ts.URL + "/api/conversations/" + id + "/export")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Ava: Hello there")
}

func TestExportEndpointBadFormat(t *testing.T) {
	_, cs, ts := testStack(t)
	id := seedConversation(t, cs)

	resp, err := http.Get(ts.URL + "/api/conversations/" + id + "/export?format=pdf")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteConversationEndpoint(t *testing.T) {
	_, cs, ts := testStack(t)
	id := seedConversation(t, cs)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/conversations/"+id, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conv, err := cs.GetConversation(id)
	require.NoError(t, err)
	assert.Nil(t, conv)

	// Deleting again reports not found
	resp2, err := http.DefaultClient.Do(req.Clone(req.Context()))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}
