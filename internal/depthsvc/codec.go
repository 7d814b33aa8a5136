package depthsvc

import (
	"bytes"

	ws "marketpipeline/pkg/websocket"
)

// BookTopic is the single topic used for the public depth feed: one
// instrument's books-l2-tbt channel per connection.
const BookTopic ws.TopicID = 1

type topicCodec struct {
	instID string
}

func (topicCodec) DecodeTopic(payload []byte) (ws.TopicID, bool) {
	if _, ok := peekChannel(payload); !ok {
		return 0, false
	}
	return BookTopic, true
}

func (c topicCodec) EncodeSubscribe(dst []byte, topic ws.TopicID) (ws.MessageType, []byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"op":"subscribe","args":[{"channel":"books-l2-tbt","instId":"`)
	buf.WriteString(c.instID)
	buf.WriteString(`"}]}`)
	return ws.MessageText, append(dst[:0], buf.Bytes()...), nil
}

func (c topicCodec) EncodeUnsubscribe(dst []byte, topic ws.TopicID) (ws.MessageType, []byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"op":"unsubscribe","args":[{"channel":"books-l2-tbt","instId":"`)
	buf.WriteString(c.instID)
	buf.WriteString(`"}]}`)
	return ws.MessageText, append(dst[:0], buf.Bytes()...), nil
}
