package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/wolfbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 15 * time.Second
	updatesBuffer    = 64
)

// SubscribeOrderUpdates opens the trade_updates stream. The returned channel
// carries one result per message and is closed when the connection drops or
// ctx is cancelled. Messages that cannot be decoded arrive as results with
// Err set; the stream keeps going.
func (c *Client) SubscribeOrderUpdates(ctx context.Context) (<-chan domain.OrderUpdateResult, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.streamURL, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("alpaca/ws: connect: %w", err)
	}

	if err := c.handshake(conn); err != nil {
		conn.Close()
		return nil, err
	}

	s := &updateStream{
		conn:   conn,
		out:    make(chan domain.OrderUpdateResult, updatesBuffer),
		done:   make(chan struct{}),
		logger: c.logger,
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go s.readLoop(ctx)
	go s.pingLoop()
	go func() {
		select {
		case <-ctx.Done():
			s.close()
		case <-s.done:
		}
	}()

	c.logger.InfoContext(ctx, "alpaca/ws: listening for trade updates")
	return s.out, nil
}

// handshake authenticates and subscribes to trade_updates.
func (c *Client) handshake(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	if err := writeJSON(conn, streamAuth{Action: "auth", Key: c.keyID, Secret: c.secret}); err != nil {
		return fmt.Errorf("alpaca/ws: send auth: %w", err)
	}
	msg, err := readStreamMessage(conn)
	if err != nil {
		return fmt.Errorf("alpaca/ws: read auth reply: %w", err)
	}
	var auth authorization
	if msg.Stream != "authorization" || json.Unmarshal(msg.Data, &auth) != nil || auth.Status != "authorized" {
		return fmt.Errorf("alpaca/ws: auth rejected (%s): %w", auth.Status, domain.ErrUnauthorized)
	}

	listen := streamListen{Action: "listen"}
	listen.Data.Streams = []string{"trade_updates"}
	if err := writeJSON(conn, listen); err != nil {
		return fmt.Errorf("alpaca/ws: send listen: %w", err)
	}
	msg, err = readStreamMessage(conn)
	if err != nil {
		return fmt.Errorf("alpaca/ws: read listen reply: %w", err)
	}
	if msg.Stream != "listening" {
		return fmt.Errorf("alpaca/ws: unexpected listen reply %q: %w", msg.Stream, domain.ErrWSDisconnect)
	}
	return nil
}

type updateStream struct {
	conn   *websocket.Conn
	out    chan domain.OrderUpdateResult
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger

	writeMu sync.Mutex
}

func (s *updateStream) close() {
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = s.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		s.writeMu.Unlock()
		s.conn.Close()
	})
}

// readLoop owns the output channel and closes it on the first read error.
func (s *updateStream) readLoop(ctx context.Context) {
	defer close(s.out)
	defer s.close()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.WarnContext(ctx, "alpaca/ws: stream closed",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		res, ok := decodeUpdate(raw)
		if !ok {
			continue
		}
		select {
		case s.out <- res:
		case <-s.done:
			return
		}
	}
}

func (s *updateStream) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// decodeUpdate turns one frame into a result. Control messages for other
// streams are dropped (ok == false).
func decodeUpdate(raw []byte) (domain.OrderUpdateResult, bool) {
	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.OrderUpdateResult{Err: fmt.Errorf("alpaca/ws: decode message: %w", err)}, true
	}
	if msg.Stream != "trade_updates" {
		return domain.OrderUpdateResult{}, false
	}
	var u tradeUpdate
	if err := json.Unmarshal(msg.Data, &u); err != nil {
		return domain.OrderUpdateResult{Err: fmt.Errorf("alpaca/ws: decode trade update: %w", err)}, true
	}
	if u.Order.Symbol == "" {
		return domain.OrderUpdateResult{Err: fmt.Errorf("alpaca/ws: trade update %q without order symbol", u.Event)}, true
	}
	return domain.OrderUpdateResult{Update: u.toDomain()}, true
}

func writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readStreamMessage reads one control reply. Alpaca may wrap replies in a
// one-element array.
func readStreamMessage(conn *websocket.Conn) (streamMessage, error) {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return streamMessage{}, err
	}
	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err == nil {
		return msg, nil
	}
	var list []streamMessage
	if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
		return streamMessage{}, fmt.Errorf("decode reply: %s", raw)
	}
	return list[0], nil
}
