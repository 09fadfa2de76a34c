package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleybot/parley/internal/config"
	"github.com/parleybot/parley/internal/engine"
	"github.com/parleybot/parley/internal/llm"
	"github.com/parleybot/parley/internal/logging"
	"github.com/parleybot/parley/internal/pricing"
	"github.com/parleybot/parley/internal/store"
)

// testStack wires a real engine and store behind the server, with a mock
// model client that counts its replies.
func testStack(t *testing.T) (*Server, *store.ConversationStore, *httptest.Server) {
	t.Helper()
	log := logging.New(nil, "silent")
	cfg := config.Defaults()

	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cs := store.NewConversationStore(db)

	catalog := pricing.NewCatalog("", t.TempDir(), time.Hour, log)
	calc := pricing.NewCalculator(catalog, 31.5, 10, "TWD")

	var n atomic.Int64
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{
				Content: fmt.Sprintf("reply %d", n.Add(1)),
				Usage:   llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			}, nil
		},
		StreamFunc: func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
			ch := make(chan llm.StreamEvent, 1)
			ch <- llm.StreamEvent{Type: "done", Response: &llm.CompletionResponse{
				Content: fmt.Sprintf("reply %d", n.Add(1)),
				Usage:   llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			}}
			close(ch)
			return ch, nil
		},
	}

	srv := New(cfg, cs, log)
	eng := engine.New(client, cs, calc, srv, engine.Config{TurnDelay: time.Millisecond, MaxTurns: 2}, log)
	t.Cleanup(eng.Stop)
	srv.AttachEngine(eng)

	mux := http.NewServeMux()
	srv.registerHTTPRoutes(mux)

	ts := httptest.NewServer(withMiddleware(mux, log))
	t.Cleanup(ts.Close)
	return srv, cs, ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	return conn
}

// readHello consumes the hello event that opens every connection.
func readHello(t *testing.T, conn *websocket.Conn) Hello {
	t.Helper()
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, FrameTypeEvent, f.Type)
	require.Equal(t, "hello", f.Event)

	var hello Hello
	require.NoError(t, json.Unmarshal(f.Payload, &hello))
	return hello
}

// rpc sends a request and reads frames until the matching response arrives,
// collecting event frames seen along the way.
func rpc(t *testing.T, conn *websocket.Conn, id, method string, params any) (Frame, []Frame) {
	t.Helper()
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var events []Frame
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == FrameTypeResponse && f.ID == id {
			return f, events
		}
		if f.Type == FrameTypeEvent {
			events = append(events, f)
		}
	}
	t.Fatalf("no response for %s", method)
	return Frame{}, nil
}

func TestWebSocketHello(t *testing.T) {
	_, _, ts := testStack(t)

	conn := dialWS(t, ts)
	hello := readHello(t, conn)

	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.ConnID)
	assert.Contains(t, hello.Methods, "conversation.start")
	assert.Contains(t, hello.Events, "new_message")
}

func TestRPCUnknownMethod(t *testing.T) {
	_, _, ts := testStack(t)

	conn := dialWS(t, ts)
	readHello(t, conn)

	resp, _ := rpc(t, conn, "r1", "no.such.method", nil)
	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	assert.Equal(t, "method_not_found", resp.Error.Code)
}

func TestRPCHealth(t *testing.T) {
	_, _, ts := testStack(t)

	conn := dialWS(t, ts)
	readHello(t, conn)

	resp, _ := rpc(t, conn, "r1", "health", nil)
	require.NotNil(t, resp.OK)
	require.True(t, *resp.OK)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Clients)
}

func TestRPCConversationLifecycle(t *testing.T) {
	srv, cs, ts := testStack(t)

	conn := dialWS(t, ts)
	readHello(t, conn)

	resp, _ := rpc(t, conn, "r1", "conversation.start", startParams{
		BotA:        botParams{Name: "Ava", SystemPrompt: "You are Ava.", Model: "gpt-4o"},
		BotB:        botParams{Name: "Bo", SystemPrompt: "You are Bo.", Model: "gpt-4o"},
		SeedMessage: "Hi",
	})
	require.NotNil(t, resp.OK)
	require.True(t, *resp.OK, "start failed: %+v", resp.Error)

	var started struct {
		ConversationID string `json:"conversationId"`
	}
	require.NoError(t, json.Unmarshal(resp.Payload, &started))
	require.NotEmpty(t, started.ConversationID)

	// A second start while running is rejected
	resp2, _ := rpc(t, conn, "r2", "conversation.start", startParams{
		BotA:        botParams{Name: "Ava", SystemPrompt: "p", Model: "gpt-4o"},
		BotB:        botParams{Name: "Bo", SystemPrompt: "p", Model: "gpt-4o"},
		SeedMessage: "Hi",
	})
	if resp2.Error != nil {
		assert.Equal(t, "already_running", resp2.Error.Code)
	}

	// The run has two turns; wait for completion via status polling.
	require.Eventually(t, func() bool {
		return srv.engine.Status().State == engine.StateCompleted
	}, 5*time.Second, 5*time.Millisecond)

	msgs, err := cs.ListMessages(started.ConversationID)
	require.NoError(t, err)
	assert.Len(t, msgs, 3) // seed + 2 turns
}

func TestEngineEventsReachClients(t *testing.T) {
	srv, _, ts := testStack(t)

	conn := dialWS(t, ts)
	readHello(t, conn)

	// Events emitted by the engine must arrive at connected clients.
	resp, early := rpc(t, conn, "r1", "conversation.start", startParams{
		BotA:        botParams{Name: "Ava", SystemPrompt: "You are Ava.", Model: "gpt-4o"},
		BotB:        botParams{Name: "Bo", SystemPrompt: "You are Bo.", Model: "gpt-4o"},
		SeedMessage: "Hi",
	})
	require.True(t, *resp.OK)

	require.Eventually(t, func() bool {
		return srv.engine.Status().State == engine.StateCompleted
	}, 5*time.Second, 5*time.Millisecond)

	seen := map[string]bool{}
	for _, f := range early {
		seen[f.Event] = true
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && (!seen["new_message"] || !seen["conversation_state"]) {
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			break
		}
		if f.Type == FrameTypeEvent {
			seen[f.Event] = true
		}
	}
	assert.True(t, seen["new_message"], "expected a new_message event")
	assert.True(t, seen["conversation_state"], "expected a conversation_state event")
}

func TestRPCPauseWithoutRun(t *testing.T) {
	_, _, ts := testStack(t)

	conn := dialWS(t, ts)
	readHello(t, conn)

	resp, _ := rpc(t, conn, "r1", "conversation.pause", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_running", resp.Error.Code)
}

func TestRPCStatusIdle(t *testing.T) {
	_, _, ts := testStack(t)

	conn := dialWS(t, ts)
	readHello(t, conn)

	resp, _ := rpc(t, conn, "r1", "conversation.status", nil)
	require.True(t, *resp.OK)

	var status engine.Status
	require.NoError(t, json.Unmarshal(resp.Payload, &status))
	assert.Equal(t, engine.StateIdle, status.State)
}
