package session

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 개발용 - 모든 origin 허용
		return true
	},
}

// 클라이언트 → 서버 메시지
type clientMessage struct {
	Type string `json:"type"`
}

// 연결된 클라이언트 정보
type Client struct {
	conn    *websocket.Conn
	session *Session
	send    chan []byte
}

// ServeWS - GET /ws?session={id}
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	s, ok := h.manager.Get(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:    conn,
		session: s,
		send:    make(chan []byte, 256),
	}

	if !s.addClient(client) {
		conn.Close()
		return
	}
	h.manager.countConnection()

	go client.writePump()
	go client.readPump()

	// 접속 직후 현재 상태 전송
	s.PushState("connected")
}

// 클라이언트로부터 메시지 읽기
func (c *Client) readPump() {
	defer func() {
		c.session.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var message clientMessage
		err := c.conn.ReadJSON(&message)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		c.session.touch()

		switch message.Type {
		case "request_state":
			c.session.PushState("requested")
		default:
			log.Printf("⚠️  Unknown message type from session %s: %s", c.session.id, message.Type)
		}
	}
}

// 클라이언트로 메시지 쓰기
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WebSocket write error: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
