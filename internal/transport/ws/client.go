package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"blockroom.ai/internal/protocol"
)

var (
	ErrQueueFull = errors.New("ws: outbound queue full")
	ErrClosed    = errors.New("ws: connection closed")
)

// Recorder receives every frame crossing the connection.
type Recorder interface {
	Record(dir string, raw []byte)
}

type Options struct {
	URL       string
	Header    http.Header
	Validator *protocol.Validator
	Journal   Recorder
	Logger    zerolog.Logger

	// Queue bounds the outbound buffer. Defaults to 32.
	Queue int
	// PingInterval defaults to 25s; ReadTimeout to 60s.
	PingInterval time.Duration
	ReadTimeout  time.Duration
}

// Client is one websocket connection to a game room. Send may be called from
// any goroutine; Run owns the socket.
type Client struct {
	conn *websocket.Conn
	opts Options
	log  zerolog.Logger

	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// RoomURL joins a server base URL with a room id and nickname.
func RoomURL(base, room, name string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("ws: unsupported scheme %q", u.Scheme)
	}
	if room == "" {
		return "", fmt.Errorf("ws: empty room id")
	}
	u.Path += "/ws/" + url.PathEscape(room)
	q := u.Query()
	if name != "" {
		q.Set("nickname", name)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Queue <= 0 {
		opts.Queue = 32
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.URL, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.URL, err)
	}
	c := &Client{
		conn:   conn,
		opts:   opts,
		log:    opts.Logger.With().Str("component", "ws").Logger(),
		out:    make(chan []byte, opts.Queue),
		closed: make(chan struct{}),
	}
	return c, nil
}

// Send validates msg, journals it and queues it for the writer. It never
// blocks.
func (c *Client) Send(msg any) error {
	if c.opts.Validator != nil {
		if err := c.opts.Validator.Outbound(msg); err != nil {
			return fmt.Errorf("outbound %T: %w", msg, err)
		}
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	select {
	case c.out <- b:
	default:
		return ErrQueueFull
	}
	if c.opts.Journal != nil {
		c.opts.Journal.Record("out", b)
	}
	return nil
}

// Run pumps the connection until ctx is done or the socket fails. Valid
// inbound frames are passed to deliver in arrival order.
func (c *Client) Run(parent context.Context, deliver func(context.Context, []byte) error) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer c.Close()

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	})

	// Writer goroutine.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(c.opts.PingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				return
			case b := <-c.out:
				_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
					c.log.Warn().Err(err).Msg("write failed")
					cancel()
					return
				}
			case <-ping.C:
				if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// Unblock the reader when the context ends.
	go func() {
		<-ctx.Done()
		<-writerDone
		_ = c.Close()
	}()

	// Reader loop.
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			cancel()
			<-writerDone
			if parent.Err() != nil {
				return parent.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if c.opts.Journal != nil {
			c.opts.Journal.Record("in", msg)
		}
		if c.opts.Validator != nil {
			typ, err := c.opts.Validator.Inbound(msg)
			if err != nil {
				if errors.Is(err, protocol.ErrUnknownType) {
					c.log.Debug().Str("type", typ).Msg("unknown frame type")
				} else {
					c.log.Warn().Err(err).Str("type", typ).Str("code", protocol.ErrProtoBadFrame).Msg("frame failed validation")
				}
				continue
			}
		}
		if err := deliver(ctx, msg); err != nil {
			return err
		}
	}
}

// Close stops accepting outbound messages and closes the socket.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
