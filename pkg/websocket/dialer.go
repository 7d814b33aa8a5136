package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"time"

	gorilla "github.com/gorilla/websocket"
)

var (
	errFrameTooLarge   = errors.New("frame exceeds buffer")
	errHandshakeFailed = errors.New("websocket: handshake failed")
	errProtocol        = errors.New("websocket: protocol error")
)

const (
	DefaultDialerTimeout   = 10 * time.Second
	DefaultDialerKeepAlive = 30 * time.Second
)

// dialer builds gorilla/websocket connections for a single host/path pair.
// It implements Dialer; manager/router above it only ever see the
// Conn interface, so swapping the transport never touches that code.
type dialer struct {
	URL         string
	Host        string
	Path        string
	TLSConfig   *tls.Config
	DialTimeout time.Duration
	Header      http.Header
}

// NewDialer creates a Dialer that connects to wss://host:port/path.
func NewDialer(ctx context.Context, host string, port string, path string) Dialer {
	url := "wss://" + host
	if port != "" && port != "443" {
		url += ":" + port
	}
	url += path
	return &dialer{
		URL:  url,
		Host: host,
		Path: path,
		TLSConfig: &tls.Config{
			ServerName: host,
			MinVersion: tls.VersionTLS12,
		},
		DialTimeout: DefaultDialerTimeout,
	}
}

func (d *dialer) Dial(ctx context.Context) (Conn, error) {
	dialCtx := ctx
	if d.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, d.DialTimeout)
		defer cancel()
	}

	gd := gorilla.Dialer{
		TLSClientConfig:  d.TLSConfig,
		HandshakeTimeout: d.DialTimeout,
	}
	conn, resp, err := gd.DialContext(dialCtx, d.URL, d.Header)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, errHandshakeFailed
		}
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

// wsConn adapts *gorilla/websocket.Conn to the Conn interface Manager drives.
type wsConn struct {
	conn *gorilla.Conn
}

func (c *wsConn) Read(ctx context.Context, dst []byte) (int, MessageType, error) {
	if err := c.setReadDeadline(ctx); err != nil {
		return 0, 0, err
	}
	msgType, reader, err := c.conn.NextReader()
	if err != nil {
		return 0, 0, err
	}
	mt := gorillaToMessageType(msgType)
	if mt == 0 {
		return 0, 0, errProtocol
	}

	total := 0
	for {
		n, err := reader.Read(dst[total:])
		total += n
		if err != nil {
			if err.Error() == "EOF" {
				return total, mt, nil
			}
			return total, mt, err
		}
		if total >= len(dst) {
			return total, mt, errFrameTooLarge
		}
	}
}

func (c *wsConn) Write(ctx context.Context, msgType MessageType, payload []byte) error {
	gt := messageTypeToGorilla(msgType)
	if gt == 0 {
		return errProtocol
	}
	if err := c.setWriteDeadline(ctx); err != nil {
		return err
	}
	return c.conn.WriteMessage(gt, payload)
}

func (c *wsConn) Close(code CloseCode, reason string) error {
	msg := gorilla.FormatCloseMessage(int(code), reason)
	_ = c.conn.WriteControl(gorilla.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}

func (c *wsConn) setReadDeadline(ctx context.Context) error {
	return setDeadline(ctx, c.conn.SetReadDeadline)
}

func (c *wsConn) setWriteDeadline(ctx context.Context) error {
	return setDeadline(ctx, c.conn.SetWriteDeadline)
}

func setDeadline(ctx context.Context, set func(time.Time) error) error {
	if ctx == nil {
		return set(time.Time{})
	}
	if deadline, ok := ctx.Deadline(); ok {
		return set(deadline)
	}
	if ctx.Err() != nil {
		return set(time.Now())
	}
	return set(time.Time{})
}

func messageTypeToGorilla(msgType MessageType) int {
	switch msgType {
	case MessageText:
		return gorilla.TextMessage
	case MessageBinary:
		return gorilla.BinaryMessage
	case MessagePing:
		return gorilla.PingMessage
	case MessagePong:
		return gorilla.PongMessage
	case MessageClose:
		return gorilla.CloseMessage
	default:
		return 0
	}
}

func gorillaToMessageType(msgType int) MessageType {
	switch msgType {
	case gorilla.TextMessage:
		return MessageText
	case gorilla.BinaryMessage:
		return MessageBinary
	default:
		return 0
	}
}
