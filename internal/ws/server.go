package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fathima-sithara/relay-service/internal/config"
	"github.com/fathima-sithara/relay-service/internal/metrics"
	"github.com/fathima-sithara/relay-service/internal/middleware"
	"github.com/fathima-sithara/relay-service/internal/presence"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LocalUserID is the fiber Locals key holding the verified user id.
const LocalUserID = middleware.LocalUserID

type Options struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteDeadline  time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

func OptionsFromConfig(cfg config.WS) Options {
	return Options{
		PingInterval:   cfg.PingInterval,
		PongWait:       cfg.PongWait,
		WriteDeadline:  cfg.WriteDeadline,
		MaxMessageSize: cfg.MaxMessageSize,
		SendBuffer:     cfg.SendBuffer,
	}
}

type Server struct {
	registry *Registry
	relay    *Relay
	presence presence.Tracker
	metrics  *metrics.Metrics
	log      *zap.Logger
	opts     Options

	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	stopping bool
	conns    sync.WaitGroup
}

func NewServer(registry *Registry, relay *Relay, tracker presence.Tracker, m *metrics.Metrics, opts Options, log *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		registry: registry,
		relay:    relay,
		presence: tracker,
		metrics:  m,
		log:      log,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RequireUpgrade rejects plain HTTP requests to the websocket route.
func RequireUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// Handler upgrades a request that already passed authentication.
func (s *Server) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals(LocalUserID).(string)
		if userID == "" {
			_ = conn.Close()
			return
		}
		s.Serve(userID, conn)
	})
}

// Serve runs one authenticated connection until it closes.
func (s *Server) Serve(userID string, sock Socket) {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		_ = sock.Close()
		return
	}
	s.conns.Add(1)
	s.mu.Unlock()
	defer s.conns.Done()

	c := newClient(uuid.NewString(), userID, sock, s.opts.SendBuffer)
	if !s.registry.Register(c) {
		_ = sock.Close()
		return
	}
	s.metrics.Connections.Inc()

	log := s.log.With(zap.String("user_id", userID), zap.String("conn_id", c.id))
	if err := s.presence.Connect(s.ctx, userID, c.id); err != nil {
		log.Warn("presence connect", zap.Error(err))
	}
	log.Info("connection registered")

	ctx, cancel := context.WithCancel(s.ctx)
	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		s.writePump(c, log)
	}()

	s.readPump(ctx, c, log)

	if s.registry.Unregister(c) {
		s.metrics.Connections.Dec()
	}
	cancel()
	c.Close()
	writer.Wait()

	if err := s.presence.Disconnect(context.Background(), userID, c.id); err != nil {
		log.Warn("presence disconnect", zap.Error(err))
	}
	log.Info("connection closed", zap.Duration("duration", time.Since(c.connectedAt)))
}

func (s *Server) readPump(ctx context.Context, c *Client, log *zap.Logger) {
	c.sock.SetReadLimit(s.opts.MaxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		mt, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("read", zap.Error(err))
			}
			return
		}
		_ = c.sock.SetReadDeadline(time.Now().Add(s.opts.PongWait))
		if mt != websocket.TextMessage {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.metrics.SendsDropped.WithLabelValues(metrics.DropMalformed).Inc()
			continue
		}
		switch env.Event {
		case EventMessageSend:
			ev, ok := decodeSendEvent(env.Data)
			if !ok {
				s.metrics.SendsDropped.WithLabelValues(metrics.DropMalformed).Inc()
				continue
			}
			s.relay.OnSend(ctx, c, ev)
		default:
			log.Debug("ignoring event", zap.String("event", env.Event))
		}
	}
}

func (s *Server) writePump(c *Client, log *zap.Logger) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.sock.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(s.opts.WriteDeadline))
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug("write", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(s.opts.WriteDeadline))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug("ping", zap.Error(err))
				return
			}
			s.touchPresence(c, log)
		case <-c.done:
			_ = c.sock.SetWriteDeadline(time.Now().Add(s.opts.WriteDeadline))
			_ = c.sock.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// touchPresence keeps c counted in presence for as long as it is open.
func (s *Server) touchPresence(c *Client, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.WriteDeadline)
	defer cancel()
	if err := s.presence.Touch(ctx, c.userID, c.id); err != nil {
		log.Warn("presence touch", zap.Error(err))
	}
}

// Shutdown closes every live connection and waits for their loops to finish
// or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	s.cancel()
	s.registry.Close()
	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
