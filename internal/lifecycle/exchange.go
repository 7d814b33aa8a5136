package lifecycle

import "context"

// OrderRequest is what the Engine asks the exchange actor to place.
type OrderRequest struct {
	LocalID uint32
	Side    Side
	Type    OrderType
	Price   float64
	Size    float64
}

// ExchangeAck is the exchange's response to a submitted order, carrying
// the exchange-assigned id once known.
type ExchangeAck struct {
	LocalID    uint32
	ExchangeID string
	Accepted   bool
	Reason     string
}

// PositionUpdate carries the unrealized-PnL ratio from the exchange's
// private position stream, the input to maxdd tracking (§4.4.4).
type PositionUpdate struct {
	UnrealizedPnLRatio float64
}

// CancelConfirmation reports the outcome of a cancel request (§4.4.5).
type CancelConfirmation struct {
	ExchangeID string
	Confirmed  bool
}

// EventKind discriminates ExchangeEvent's payload.
type EventKind uint8

const (
	EventAck EventKind = iota
	EventFill
	EventPosition
	EventCancel
)

// ExchangeEvent is one entry in the exchange actor's typed event stream
// (§9 design note "Cyclic ownership"): the Engine only ever writes
// through Submit/Cancel and reads this stream, breaking the callback
// cycle between the exchange client and the Lifecycle Engine.
type ExchangeEvent struct {
	Kind     EventKind
	Ack      ExchangeAck
	Fill     FillEvent
	Position PositionUpdate
	Cancel   CancelConfirmation
}

// ExchangeClient is the stateful actor boundary the Engine talks to.
// Submit/Cancel are the only writes; Events is the only read.
type ExchangeClient interface {
	Submit(ctx context.Context, req OrderRequest) error
	Cancel(ctx context.Context, exchangeID string) error
	Events() <-chan ExchangeEvent
}

// Publisher sends a report onto the broker's execution-update topic
// (§6.1, §6.2). Implementations serialize the report to the JSON shapes
// described there.
type Publisher interface {
	PublishExecution(ctx context.Context, report any) error
}
