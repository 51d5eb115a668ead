package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client - websocket-соединение участника группы.
// Запись идет только из writePump, Send лишь ставит сообщение в очередь.
type Client struct {
	GroupID  uuid.UUID
	UserID   uuid.UUID
	Username string

	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	log  logger.Logger

	closeOnce   sync.Once
	closeCode   int
	closeReason string
}

func NewClient(conn *websocket.Conn, groupID, userID uuid.UUID, username string, buffer int, log logger.Logger) *Client {
	return &Client{
		GroupID:   groupID,
		UserID:    userID,
		Username:  username,
		conn:      conn,
		send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
		log:       log,
		closeCode: websocket.CloseNormalClosure,
	}
}

// Send не блокируется: переполненная очередь считается сбоем доставки
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSendBufferFull
	}
}

// Close завершает writePump, который отправит close-фрейм с code и reason
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Run запускает writePump и читает входящие сообщения до разрыва соединения
func (c *Client) Run(onMessage func([]byte)) {
	go c.writePump()
	c.readPump(onMessage)
}

func (c *Client) readPump(onMessage func([]byte)) {
	defer c.Close(websocket.CloseNormalClosure, "")

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("WebSocket read error", "error", err, "user_id", c.UserID, "group_id", c.GroupID)
			}
			return
		}
		onMessage(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			c.drain()
			if c.closeCode != websocket.CloseAbnormalClosure {
				msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
				_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			}
			return
		}
	}
}

// drain дописывает уже поставленные в очередь сообщения
func (c *Client) drain() {
	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}
