package webchat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/consult-funnel/internal/conversation"
	"github.com/wolfman30/consult-funnel/internal/dialogue"
	"github.com/wolfman30/consult-funnel/internal/session"
	"golang.org/x/net/websocket"
)

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *conversation.Service) {
	t.Helper()
	sc := dialogue.MustDefaultScenario()
	orch := dialogue.NewOrchestrator(sc, conversation.NewRulesGenerator(sc), nil)
	n := 0
	svc := conversation.NewService(orch, session.NewMemoryStore(), nil,
		conversation.WithIDGenerator(func() string { n++; return fmt.Sprintf("ws-%d", n) }),
	)
	h := NewHandler(svc, nil, opts...)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)
	return srv, svc
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws" + query
	conn, err := websocket.Dial(url, "", "http://localhost/")
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func receive(t *testing.T, conn *websocket.Conn) OutboundMessage {
	t.Helper()
	var msg OutboundMessage
	require.NoError(t, websocket.JSON.Receive(conn, &msg))
	return msg
}

// request sends one frame and returns the answer after the typing indicator.
func request(t *testing.T, conn *websocket.Conn, in InboundMessage) OutboundMessage {
	t.Helper()
	require.NoError(t, websocket.JSON.Send(conn, in))
	typing := receive(t, conn)
	require.Equal(t, "typing", typing.Type)
	return receive(t, conn)
}

func TestWebSocket_NewSessionFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv, "")

	sess := receive(t, conn)
	assert.Equal(t, "session", sess.Type)
	assert.Equal(t, "ws-1", sess.SessionID)

	greet := receive(t, conn)
	require.Equal(t, "reply", greet.Type)
	require.NotNil(t, greet.Reply)
	assert.Equal(t, dialogue.StageInitial, greet.Reply.Stage)

	out := request(t, conn, InboundMessage{Type: "message", Text: "요즘 너무 피곤해요"})
	require.Equal(t, "reply", out.Type)
	assert.Equal(t, dialogue.StageSymptomExplore, out.Reply.Stage)

	for _, text := range []string{"어깨가 뻐근해요", "잠은 괜찮아요", "소화는 문제없어요"} {
		out = request(t, conn, InboundMessage{Type: "message", Text: text})
		require.Equal(t, "reply", out.Type)
	}
	assert.Equal(t, dialogue.UIHintImagePicker, out.Reply.UIHint)

	out = request(t, conn, InboundMessage{Type: "select", Option: "teeth_marked"})
	require.Equal(t, "reply", out.Type)
	assert.Equal(t, dialogue.StageConversion, out.Reply.Stage)

	out = request(t, conn, InboundMessage{Type: "lead", Lead: &conversation.LeadForm{Name: "김원장", Contact: "010-1111-2222", Urgency: "someday"}})
	assert.Equal(t, "error", out.Type)
	assert.Equal(t, http.StatusBadRequest, out.Status)

	out = request(t, conn, InboundMessage{Type: "lead", Lead: &conversation.LeadForm{ClinicName: "바른한의원", Name: "김원장", Contact: "010-1111-2222", Urgency: "immediate"}})
	require.Equal(t, "reply", out.Type)
	assert.NotEmpty(t, out.LeadID)
	assert.Equal(t, dialogue.StageComplete, out.Reply.Stage)

	out = request(t, conn, InboundMessage{Type: "reset"})
	require.Equal(t, "reply", out.Type)
	assert.Equal(t, dialogue.StageInitial, out.Reply.Stage)
}

func TestWebSocket_ResumesSession(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()
	start, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, start.SessionID, "요즘 너무 피곤해요")
	require.NoError(t, err)

	conn := dial(t, srv, "?session="+start.SessionID)

	sess := receive(t, conn)
	assert.Equal(t, start.SessionID, sess.SessionID)

	history := receive(t, conn)
	require.Equal(t, "history", history.Type)
	require.Len(t, history.Messages, 3)
	assert.Equal(t, "user", history.Messages[1].Role)
	assert.Equal(t, "요즘 너무 피곤해요", history.Messages[1].Text)

	current := receive(t, conn)
	require.Equal(t, "reply", current.Type)
	assert.Equal(t, dialogue.StageSymptomExplore, current.Reply.Stage)
}

func TestWebSocket_UnknownSessionStartsFresh(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv, "?session=expired")

	sess := receive(t, conn)
	assert.Equal(t, "session", sess.Type)
	assert.Equal(t, "ws-1", sess.SessionID)
	assert.Equal(t, "reply", receive(t, conn).Type)
}

func TestWebSocket_PingAndUnknownType(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv, "")
	receive(t, conn) // session
	receive(t, conn) // greeting

	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{Type: "ping"}))
	assert.Equal(t, "pong", receive(t, conn).Type)

	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{Type: "bogus"}))
	out := receive(t, conn)
	assert.Equal(t, "error", out.Type)
	assert.Equal(t, http.StatusBadRequest, out.Status)
}

func TestWebSocket_ConflictErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv, "")
	receive(t, conn)
	receive(t, conn)

	out := request(t, conn, InboundMessage{Type: "select", Option: "pale"})
	assert.Equal(t, "error", out.Type)
	assert.Equal(t, http.StatusConflict, out.Status)
}

func TestHistoryOf(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("KST", 9*3600))
	got := historyOf([]dialogue.Turn{{Role: dialogue.RoleAgent, Text: "안녕하세요", Timestamp: at}})
	require.Len(t, got, 1)
	assert.Equal(t, "agent", got[0].Role)
	assert.Equal(t, "2026-01-01T18:04:05Z", got[0].Timestamp)
}

// openSession dials and consumes the session and greeting frames.
func openSession(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn := dial(t, srv, "")
	require.Equal(t, "session", receive(t, conn).Type)
	require.Equal(t, "reply", receive(t, conn).Type)
	return conn
}

func TestWebSocket_OversizedFrameIsRejected(t *testing.T) {
	srv, svc := newTestServer(t)
	conn := openSession(t, srv)

	require.NoError(t, websocket.Message.Send(conn, `{"type":"message","text":"`+strings.Repeat("피", maxFrameBytes)+`"}`))
	out := receive(t, conn)
	assert.Equal(t, "error", out.Type)
	assert.Equal(t, http.StatusRequestEntityTooLarge, out.Status)

	// The connection survives and the oversized text never reached the session.
	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{Type: "ping"}))
	assert.Equal(t, "pong", receive(t, conn).Type)

	snap, err := svc.Get(context.Background(), "ws-1")
	require.NoError(t, err)
	assert.Equal(t, dialogue.StageInitial, snap.Stage)
	assert.Len(t, snap.History, 1)
}

func TestWebSocket_FrameRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, WithFrameRateLimit(0.001, 2))
	conn := openSession(t, srv)

	for i := 0; i < 2; i++ {
		out := request(t, conn, InboundMessage{Type: "message", Text: "요즘 너무 피곤해요"})
		require.Equal(t, "reply", out.Type)
	}

	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{Type: "message", Text: "요즘 너무 피곤해요"}))
	out := receive(t, conn)
	assert.Equal(t, "error", out.Type)
	assert.Equal(t, http.StatusTooManyRequests, out.Status)

	// Pings are not counted against the budget.
	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{Type: "ping"}))
	assert.Equal(t, "pong", receive(t, conn).Type)

	// Each connection has its own bucket.
	other := openSession(t, srv)
	out = request(t, other, InboundMessage{Type: "message", Text: "요즘 너무 피곤해요"})
	assert.Equal(t, "reply", out.Type)
}

func TestWithFrameRateLimit_DisabledForNonPositiveRate(t *testing.T) {
	sc := dialogue.MustDefaultScenario()
	svc := conversation.NewService(dialogue.NewOrchestrator(sc, conversation.NewRulesGenerator(sc), nil), session.NewMemoryStore(), nil)
	h := NewHandler(svc, nil, WithFrameRateLimit(0, 5))
	assert.Zero(t, h.frameLimit)

	h = NewHandler(svc, nil, WithFrameRateLimit(3, 0))
	assert.Equal(t, 1, h.frameBurst)
}
