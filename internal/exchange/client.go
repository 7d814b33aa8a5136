package exchange

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"marketpipeline/internal/lifecycle"
	ws "marketpipeline/pkg/websocket"
)

// Config configures an OKX private-channel client.
type Config struct {
	Host       string // e.g. ws.okx.com:8443
	Port       string
	Path       string // e.g. /ws/v5/private
	APIKey     string
	SecretKey  string
	Passphrase string
	InstID     string // e.g. BTC-USDT-SWAP
	InstType   string // e.g. SWAP
	TdMode     string // e.g. cross
}

// Client is the stateful OKX exchange actor described by §4.4.6 / §9's
// "cyclic ownership" design note: it owns the private WebSocket session
// and exposes Submit/Cancel writes plus a typed event read stream, so
// the Lifecycle Engine never holds a callback pointer into this client.
type Client struct {
	cfg      Config
	manager  *ws.Manager
	consumer *ws.Consumer

	mu       sync.Mutex
	clOrdIDs map[string]uint32 // clOrdId -> local id, for op-reply correlation

	events   chan lifecycle.ExchangeEvent
	balances chan float64
}

// New constructs a Client and its underlying pkg/websocket.Manager, but
// does not dial; call Run to connect and start processing.
func New(ctx context.Context, cfg Config) (*Client, error) {
	codec := topicCodec{instType: cfg.InstType, instID: cfg.InstID}
	c := &Client{
		cfg:      cfg,
		clOrdIDs: make(map[string]uint32),
		events:   make(chan lifecycle.ExchangeEvent, 256),
		balances: make(chan float64, 16),
	}
	c.consumer = ws.NewConsumer(1024, ws.OverflowDropOldest)

	manager, err := ws.NewManager(ws.Config{
		Dialer:       ws.NewDialer(ctx, cfg.Host, cfg.Port, cfg.Path),
		Decoder:      codec,
		Encoder:      codec,
		Fanout:       ws.FanOutCopy,
		MaxFrameSize: 1 << 20,
		PingInterval: 20 * time.Second,
		OnConnect:    c.login,
	})
	if err != nil {
		return nil, err
	}
	c.manager = manager

	if err := c.manager.AddConsumer(PrivateTopic, c.consumer); err != nil {
		return nil, err
	}
	return c, nil
}

// Run connects, reconnects with the manager's backoff policy, and
// drains the private channel until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	go c.dispatchLoop(ctx)
	return c.manager.Run(ctx)
}

// Events returns the exchange actor's typed event stream.
func (c *Client) Events() <-chan lifecycle.ExchangeEvent {
	return c.events
}

// Balances returns account-balance updates, consumed by the engine's
// SetBalance (kept out of ExchangeEvent since it is account-level state,
// not an order/fill/position/cancel event).
func (c *Client) Balances() <-chan float64 {
	return c.balances
}

func (c *Client) login(ctx context.Context, w *ws.Writer) error {
	ts := nowTimestamp()
	req := loginRequest{
		Op: "login",
		Args: []loginRequestArg{{
			APIKey:     c.cfg.APIKey,
			Passphrase: c.cfg.Passphrase,
			Timestamp:  ts,
			Sign:       signLogin(c.cfg.SecretKey, ts),
		}},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if !w.Send(ws.MessageText, payload) {
		return ws.ErrQueueFull
	}
	return nil
}

// Submit places an order (§4.4.1 step 5). The local order id is echoed
// back as clOrdId so the eventual op reply can be matched to it.
func (c *Client) Submit(ctx context.Context, req lifecycle.OrderRequest) error {
	clOrdID := strconv.FormatUint(uint64(req.LocalID), 10)

	c.mu.Lock()
	c.clOrdIDs[clOrdID] = req.LocalID
	c.mu.Unlock()

	side := "buy"
	if req.Side == lifecycle.Sell {
		side = "sell"
	}
	ordType := "limit"
	px := strconv.FormatFloat(req.Price, 'f', -1, 64)
	if req.Type == lifecycle.Market {
		ordType = "market"
		px = ""
	}

	payload, err := json.Marshal(orderRequest{
		ID: clOrdID,
		Op: "order",
		Args: []orderRequestArg{{
			InstID:  c.cfg.InstID,
			TdMode:  c.cfg.TdMode,
			ClOrdID: clOrdID,
			Side:    side,
			OrdType: ordType,
			Sz:      strconv.FormatFloat(req.Size, 'f', -1, 64),
			Px:      px,
		}},
	})
	if err != nil {
		return err
	}
	return c.manager.Send(ws.MessageText, payload)
}

// Cancel requests cancellation of a live order by exchange id.
func (c *Client) Cancel(ctx context.Context, exchangeID string) error {
	payload, err := json.Marshal(cancelRequest{
		ID: exchangeID,
		Op: "cancel-order",
		Args: []cancelRequestArg{{
			InstID: c.cfg.InstID,
			OrdID:  exchangeID,
		}},
	})
	if err != nil {
		return err
	}
	return c.manager.Send(ws.MessageText, payload)
}

func (c *Client) dispatchLoop(ctx context.Context) {
	for {
		frame, ok := c.consumer.Next()
		if !ok {
			return
		}
		c.handleFrame(frame.Buf)
		frame.Release()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (c *Client) handleFrame(buf []byte) {
	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		logs.Warn("malformed private-channel frame, dropping")
		return
	}

	switch {
	case env.Event == "login":
		if env.Code != "0" {
			logs.Warn("okx login rejected")
		}
	case env.Event == "error":
		logs.Warn("okx private channel error: " + env.Msg)
	case env.Op == "order" || env.Op == "cancel-order":
		c.handleOpReply(env)
	case env.Arg != nil && env.Arg.Channel == "orders":
		c.handleOrdersPush(env.Data)
	case env.Arg != nil && env.Arg.Channel == "positions":
		c.handlePositionsPush(env.Data)
	case env.Arg != nil && env.Arg.Channel == "account":
		c.handleAccountPush(env.Data)
	}
}

func (c *Client) handleOpReply(env envelope) {
	var replies []opReplyData
	if err := json.Unmarshal(env.Data, &replies); err != nil || len(replies) == 0 {
		return
	}
	reply := replies[0]

	if env.Op == "cancel-order" {
		c.emit(lifecycle.ExchangeEvent{
			Kind: lifecycle.EventCancel,
			Cancel: lifecycle.CancelConfirmation{
				ExchangeID: reply.OrdID,
				Confirmed:  reply.SCode == "0",
			},
		})
		return
	}

	c.mu.Lock()
	localID, known := c.clOrdIDs[reply.ClOrdID]
	c.mu.Unlock()
	if !known {
		return
	}
	c.emit(lifecycle.ExchangeEvent{
		Kind: lifecycle.EventAck,
		Ack: lifecycle.ExchangeAck{
			LocalID:    localID,
			ExchangeID: reply.OrdID,
			Accepted:   reply.SCode == "0",
			Reason:     reply.SMsg,
		},
	})
}

func (c *Client) handleOrdersPush(data json.RawMessage) {
	var pushes []orderPush
	if err := json.Unmarshal(data, &pushes); err != nil {
		return
	}
	for _, p := range pushes {
		cumulative, _ := strconv.ParseFloat(p.AccFillSz, 64)
		avgPx, _ := strconv.ParseFloat(p.AvgPx, 64)
		side := lifecycle.Buy
		if p.Side == "sell" {
			side = lifecycle.Sell
		}
		ts := parseOKXTime(p.FillTime, p.UTime)

		c.emit(lifecycle.ExchangeEvent{
			Kind: lifecycle.EventFill,
			Fill: lifecycle.FillEvent{
				ExchangeID:       p.OrdID,
				CumulativeFilled: cumulative,
				AvgPrice:         avgPx,
				Side:             side,
				Timestamp:        ts,
			},
		})
	}
}

func (c *Client) handlePositionsPush(data json.RawMessage) {
	var pushes []positionPush
	if err := json.Unmarshal(data, &pushes); err != nil {
		return
	}
	for _, p := range pushes {
		ratio, err := strconv.ParseFloat(p.UplRatio, 64)
		if err != nil {
			continue
		}
		c.emit(lifecycle.ExchangeEvent{
			Kind:     lifecycle.EventPosition,
			Position: lifecycle.PositionUpdate{UnrealizedPnLRatio: ratio},
		})
	}
}

func (c *Client) handleAccountPush(data json.RawMessage) {
	var pushes []accountPush
	if err := json.Unmarshal(data, &pushes); err != nil {
		return
	}
	for _, p := range pushes {
		if eq, err := strconv.ParseFloat(p.TotalEq, 64); err == nil {
			select {
			case c.balances <- eq:
			default:
			}
		}
	}
}

func (c *Client) emit(ev lifecycle.ExchangeEvent) {
	select {
	case c.events <- ev:
	default:
		logs.Warn("exchange event stream full, dropping event")
	}
}

func parseOKXTime(primary, fallback string) int64 {
	if v, err := strconv.ParseInt(primary, 10, 64); err == nil && v > 0 {
		return v
	}
	if v, err := strconv.ParseInt(fallback, 10, 64); err == nil {
		return v
	}
	return 0
}
