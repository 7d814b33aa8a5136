package depthsvc

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	ws "marketpipeline/pkg/websocket"
)

// ClientConfig configures the public depth-feed connection.
type ClientConfig struct {
	Host   string
	Port   string
	Path   string
	InstID string
}

// Client owns the public WebSocket session and feeds raw payloads to an
// Engine.
type Client struct {
	manager  *ws.Manager
	consumer *ws.Consumer
	engine   *Engine
}

// NewClient constructs a depth-feed Client wired to engine.
func NewClient(ctx context.Context, cfg ClientConfig, engine *Engine) (*Client, error) {
	codec := topicCodec{instID: cfg.InstID}
	c := &Client{engine: engine}
	c.consumer = ws.NewConsumer(4096, ws.OverflowDropOldest)

	manager, err := ws.NewManager(ws.Config{
		Dialer:       ws.NewDialer(ctx, cfg.Host, cfg.Port, cfg.Path),
		Decoder:      codec,
		Encoder:      codec,
		Fanout:       ws.FanOutCopy,
		MaxFrameSize: 4 << 20,
		PingInterval: 20 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	c.manager = manager

	if err := c.manager.AddConsumer(BookTopic, c.consumer); err != nil {
		return nil, err
	}
	return c, nil
}

// Run connects and drains the public depth feed until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	go c.dispatchLoop(ctx)
	return c.manager.Run(ctx)
}

func (c *Client) dispatchLoop(ctx context.Context) {
	for {
		frame, ok := c.consumer.Next()
		if !ok {
			return
		}
		if err := c.engine.HandleMessage(ctx, frame.Buf); err != nil {
			logs.Warn("depth engine failed to process frame")
		}
		frame.Release()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
