package wireformat

import (
	"encoding/binary"

	"marketpipeline/internal/errors"
)

// ActionPayloadSize is the fixed wire size of an action frame: 1 (kind) +
// 8 (price_offset) + 8 (volume_fraction) + 4 (mid_price_cents) + 2
// (state_id) = 23 bytes.
const ActionPayloadSize = 23

// maxMidPriceCents is 1_000_000.00 expressed in cents.
const maxMidPriceCents = 100_000_000

// ErrMidPriceOutOfRange is returned when EncodeAction is asked to encode
// a mid price outside [0, 1_000_000.00].
var ErrMidPriceOutOfRange = errors.New("wireformat: mid price out of range")

// Action is the decoded form of an action-frame payload.
type Action struct {
	Kind           uint8
	PriceOffset    float64
	VolumeFraction float64
	MidPriceCents  uint32
	StateID        uint16
}

// EncodeAction serializes an action into a fixed-size payload. kind's low
// 3 bits are the action kind; the remaining bits of that byte are
// reserved and always written zero. midPriceCents outside [0,
// 100_000_000] is rejected.
func EncodeAction(dst []byte, kind uint8, priceOffset, volumeFraction float64, midPriceCents uint32, stateID uint16) ([]byte, error) {
	if midPriceCents > maxMidPriceCents {
		return nil, ErrMidPriceOutOfRange
	}
	if cap(dst) < ActionPayloadSize {
		dst = make([]byte, ActionPayloadSize)
	} else {
		dst = dst[:ActionPayloadSize]
	}

	dst[0] = kind & 0x07
	binary.LittleEndian.PutUint64(dst[1:9], EncodeChange(priceOffset))
	binary.LittleEndian.PutUint64(dst[9:17], EncodeOrderbook(volumeFraction))
	binary.LittleEndian.PutUint32(dst[17:21], midPriceCents)
	binary.LittleEndian.PutUint16(dst[21:23], stateID)

	return dst, nil
}

// DecodeAction parses a fixed-size action-frame payload.
func DecodeAction(src []byte) (Action, bool) {
	if len(src) < ActionPayloadSize {
		return Action{}, false
	}
	return Action{
		Kind:           src[0] & 0x07,
		PriceOffset:    DecodeChange(binary.LittleEndian.Uint64(src[1:9])),
		VolumeFraction: DecodeOrderbook(binary.LittleEndian.Uint64(src[9:17])),
		MidPriceCents:  binary.LittleEndian.Uint32(src[17:21]),
		StateID:        binary.LittleEndian.Uint16(src[21:23]),
	}, true
}
