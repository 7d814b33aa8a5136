// Package depthsvc is the Depth Engine: it ingests OKX public order-book
// messages, drives internal/book and internal/feature, and republishes
// feature frames via internal/broker (§4.1).
package depthsvc

import (
	"encoding/json"
	"strconv"

	"marketpipeline/internal/book"
	"marketpipeline/pkg/scanner"
)

var (
	actionKey  = []byte(`"action"`)
	channelKey = []byte(`"channel"`)
)

// peekAction cheaply reads the top-level "action" field ("snapshot" or
// "update") without a full unmarshal, using the teacher's zero-alloc
// scanner; the nested bids/asks arrays still need encoding/json since
// scanner only scans scalar fields (see DESIGN.md).
func peekAction(payload []byte) (string, bool) {
	v, ok := scanner.ScanStringField(payload, actionKey)
	if !ok {
		return "", false
	}
	return string(v), true
}

func peekChannel(payload []byte) (string, bool) {
	v, ok := scanner.ScanStringField(payload, channelKey)
	if !ok {
		return "", false
	}
	return string(v), true
}

// okxBookMessage is the OKX books/books-l2-tbt channel push shape.
type okxBookMessage struct {
	Arg    okxArg        `json:"arg"`
	Action string        `json:"action"`
	Data   []okxBookData `json:"data"`
}

type okxArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type okxBookData struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	Ts   string     `json:"ts"`
}

func decodeBookMessage(payload []byte) (okxBookMessage, error) {
	var msg okxBookMessage
	err := json.Unmarshal(payload, &msg)
	return msg, err
}

// toLevels converts OKX's [price, size, deprecatedLiqOrders, numOrders]
// string-tuples into book.Level rows, dropping malformed rows.
func toLevels(rows [][]string) []book.Level {
	levels := make([]book.Level, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		price, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			continue
		}
		orderCount := 0.0
		if len(row) >= 4 {
			orderCount, _ = strconv.ParseFloat(row[3], 64)
		}
		levels = append(levels, book.Level{Price: price, Volume: size, OrderCount: orderCount})
	}
	return levels
}
