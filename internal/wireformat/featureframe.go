package wireformat

import (
	"encoding/binary"

	"marketpipeline/internal/book"
	"marketpipeline/internal/errors"
	"marketpipeline/internal/feature"
)

const (
	sideLevels    = book.LevelsPerSide
	levelSize     = 24 // change_value price + orderbook_value volume + orderbook_value orders
	sideBlockSize = sideLevels * levelSize
	depthCount    = len(feature.Depths)
	depthFeatureSize = 4 * 8 // VI, OI, bidVwapDisp, askVwapDisp
	depthBlockSize   = depthCount * depthFeatureSize

	bidsOffset       = 0
	asksOffset       = bidsOffset + sideBlockSize
	midChangeOffset  = asksOffset + sideBlockSize
	depthBlockOffset = midChangeOffset + 8
	midCentsOffset   = depthBlockOffset + depthBlockSize
	seqIDOffset      = midCentsOffset + 4

	// FeatureFramePayloadSize is the fixed wire size of a feature frame:
	// 9600 (bids) + 9600 (asks) + 8 (mid) + 160 (5 depths * 4 values) +
	// 4 (mid cents) + 2 (sequence id) = 19374 bytes.
	FeatureFramePayloadSize = seqIDOffset + 2
)

// ErrWrongLevelCount is returned when the bid or ask slice passed to
// EncodeFeatureFrame does not hold exactly book.LevelsPerSide entries.
var ErrWrongLevelCount = errors.New("wireformat: side does not hold exactly 400 levels")

// EncodeFeatureFrame serializes a feature frame into a fixed-size payload.
func EncodeFeatureFrame(dst []byte, bids, asks []book.Level, mid float64, vec feature.Vector, midPriceCents uint32, sequenceID uint16) ([]byte, error) {
	if len(bids) != sideLevels || len(asks) != sideLevels {
		return nil, ErrWrongLevelCount
	}
	if cap(dst) < FeatureFramePayloadSize {
		dst = make([]byte, FeatureFramePayloadSize)
	} else {
		dst = dst[:FeatureFramePayloadSize]
	}

	encodeSide(dst[bidsOffset:asksOffset], bids)
	encodeSide(dst[asksOffset:midChangeOffset], asks)
	binary.LittleEndian.PutUint64(dst[midChangeOffset:depthBlockOffset], EncodeChange(mid))

	depthBuf := dst[depthBlockOffset:midCentsOffset]
	for i, d := range vec.ByDepth {
		off := i * depthFeatureSize
		binary.LittleEndian.PutUint64(depthBuf[off:off+8], EncodeChange(d.VolumeImbalance))
		binary.LittleEndian.PutUint64(depthBuf[off+8:off+16], EncodeChange(d.OrderImbalance))
		binary.LittleEndian.PutUint64(depthBuf[off+16:off+24], EncodeChange(d.BidVwapDisp))
		binary.LittleEndian.PutUint64(depthBuf[off+24:off+32], EncodeChange(d.AskVwapDisp))
	}

	binary.LittleEndian.PutUint32(dst[midCentsOffset:seqIDOffset], midPriceCents)
	binary.LittleEndian.PutUint16(dst[seqIDOffset:FeatureFramePayloadSize], sequenceID)

	return dst, nil
}

// DecodedFeatureFrame is the decoded form of a feature-frame payload.
type DecodedFeatureFrame struct {
	Bids          [sideLevels]book.Level
	Asks          [sideLevels]book.Level
	Mid           float64
	Vector        feature.Vector
	MidPriceCents uint32
	SequenceID    uint16
}

// DecodeFeatureFrame parses a fixed-size feature-frame payload.
func DecodeFeatureFrame(src []byte) (DecodedFeatureFrame, bool) {
	if len(src) < FeatureFramePayloadSize {
		return DecodedFeatureFrame{}, false
	}
	var out DecodedFeatureFrame
	decodeSide(src[bidsOffset:asksOffset], out.Bids[:])
	decodeSide(src[asksOffset:midChangeOffset], out.Asks[:])
	out.Mid = DecodeChange(binary.LittleEndian.Uint64(src[midChangeOffset:depthBlockOffset]))

	depthBuf := src[depthBlockOffset:midCentsOffset]
	for i := range out.Vector.ByDepth {
		off := i * depthFeatureSize
		out.Vector.ByDepth[i] = feature.DepthFeature{
			VolumeImbalance: DecodeChange(binary.LittleEndian.Uint64(depthBuf[off : off+8])),
			OrderImbalance:  DecodeChange(binary.LittleEndian.Uint64(depthBuf[off+8 : off+16])),
			BidVwapDisp:     DecodeChange(binary.LittleEndian.Uint64(depthBuf[off+16 : off+24])),
			AskVwapDisp:     DecodeChange(binary.LittleEndian.Uint64(depthBuf[off+24 : off+32])),
		}
	}
	out.Vector.Mid = out.Mid

	out.MidPriceCents = binary.LittleEndian.Uint32(src[midCentsOffset:seqIDOffset])
	out.SequenceID = binary.LittleEndian.Uint16(src[seqIDOffset:FeatureFramePayloadSize])
	return out, true
}

func encodeSide(dst []byte, levels []book.Level) {
	for i, lvl := range levels {
		off := i * levelSize
		binary.LittleEndian.PutUint64(dst[off:off+8], EncodeChange(lvl.Price))
		binary.LittleEndian.PutUint64(dst[off+8:off+16], EncodeOrderbook(lvl.Volume))
		binary.LittleEndian.PutUint64(dst[off+16:off+24], EncodeOrderbook(lvl.OrderCount))
	}
}

func decodeSide(src []byte, dst []book.Level) {
	for i := range dst {
		off := i * levelSize
		dst[i] = book.Level{
			Price:      DecodeChange(binary.LittleEndian.Uint64(src[off : off+8])),
			Volume:     DecodeOrderbook(binary.LittleEndian.Uint64(src[off+8 : off+16])),
			OrderCount: DecodeOrderbook(binary.LittleEndian.Uint64(src[off+16 : off+24])),
		}
	}
}
