package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lalaquiz-backend/internal/models"
)

type staticAuth struct {
	tokens map[string]uuid.UUID
}

func (a staticAuth) ParseUserID(token string) (uuid.UUID, error) {
	id, ok := a.tokens[token]
	if !ok {
		return uuid.Nil, errors.New("unknown token")
	}
	return id, nil
}

func TestHub_LocalDelivery(t *testing.T) {
	userID := uuid.New()
	hub := NewHub(nil, staticAuth{tokens: map[string]uuid.UUID{"good": userID}})

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=good"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Connected(userID) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	msg := models.WSMessage{Type: "share_link", Payload: models.ShareLinkEvent{URL: "http://localhost:5173/?share=abc"}}
	if err := hub.Publish(context.Background(), userID, msg); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var got struct {
		Type    string                `json:"type"`
		Payload models.ShareLinkEvent `json:"payload"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("bad message: %v", err)
	}
	if got.Type != "share_link" || got.Payload.URL != "http://localhost:5173/?share=abc" {
		t.Errorf("unexpected message %+v", got)
	}
}

func TestHub_NoConnection(t *testing.T) {
	hub := NewHub(nil, staticAuth{})
	err := hub.Publish(context.Background(), uuid.New(), models.WSMessage{Type: "share_link"})
	if !errors.Is(err, ErrNoConnection) {
		t.Errorf("expected ErrNoConnection, got %v", err)
	}
}

func TestHub_RejectsBadToken(t *testing.T) {
	hub := NewHub(nil, staticAuth{})

	for _, target := range []string{"/", "/?token=bad"} {
		rr := httptest.NewRecorder()
		hub.HandleWebSocket(rr, httptest.NewRequest(http.MethodGet, target, nil))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", target, rr.Code)
		}
	}
}
