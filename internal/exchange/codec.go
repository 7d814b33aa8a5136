package exchange

import (
	"bytes"

	ws "marketpipeline/pkg/websocket"
)

// PrivateTopic is the single topic used for the OKX private channel:
// orders, account, positions pushes and order/cancel op replies all
// arrive on one connection and are dispatched by payload content rather
// than by the pkg/websocket router's multi-consumer fanout, which exists
// for the public depth feed's many subscribers, not this single-purpose
// session.
const PrivateTopic ws.TopicID = 1

// topicCodec implements ws.TopicDecoder and ws.ControlEncoder for the
// private channel's one-shot combined subscription.
type topicCodec struct {
	instType string
	instID   string
}

func (topicCodec) DecodeTopic(payload []byte) (ws.TopicID, bool) {
	if len(payload) == 0 {
		return 0, false
	}
	return PrivateTopic, true
}

func (c topicCodec) EncodeSubscribe(dst []byte, topic ws.TopicID) (ws.MessageType, []byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"op":"subscribe","args":[`)
	buf.WriteString(`{"channel":"account"},`)
	buf.WriteString(`{"channel":"positions","instType":"`)
	buf.WriteString(c.instType)
	buf.WriteString(`"},`)
	buf.WriteString(`{"channel":"orders","instType":"`)
	buf.WriteString(c.instType)
	buf.WriteString(`","instId":"`)
	buf.WriteString(c.instID)
	buf.WriteString(`"}]}`)
	return ws.MessageText, append(dst[:0], buf.Bytes()...), nil
}

func (c topicCodec) EncodeUnsubscribe(dst []byte, topic ws.TopicID) (ws.MessageType, []byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"op":"unsubscribe","args":[`)
	buf.WriteString(`{"channel":"account"},`)
	buf.WriteString(`{"channel":"positions","instType":"`)
	buf.WriteString(c.instType)
	buf.WriteString(`"},`)
	buf.WriteString(`{"channel":"orders","instType":"`)
	buf.WriteString(c.instType)
	buf.WriteString(`","instId":"`)
	buf.WriteString(c.instID)
	buf.WriteString(`"}]}`)
	return ws.MessageText, append(dst[:0], buf.Bytes()...), nil
}
