package angelone

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// SmartAPI streams little-endian binary frames. Every frame starts with
// a 51-byte header; QUOTE and SNAP_QUOTE modes append more sections.
// All prices are integer paise.
const (
	modeLTP       = 1
	modeQuote     = 2
	modeSnapQuote = 3

	ltpFrameSize       = 51
	quoteFrameSize     = 123
	snapQuoteFrameSize = 347

	tokenFieldSize = 25
	depthLevels    = 10
	depthEntrySize = 20
)

// rawTick is one decoded frame before token→instrument mapping.
type rawTick struct {
	Mode         uint8
	ExchangeType uint8
	Token        string
	Sequence     int64
	Timestamp    *time.Time
	LTP          float64
	Volume       *int64
	OI           *int64
	Bid          *float64
	Ask          *float64
}

// decodeFrame decodes one binary frame. Frames shorter than their mode's
// minimum are rejected; the caller discards them.
func decodeFrame(data []byte) (*rawTick, error) {
	if len(data) < ltpFrameSize {
		return nil, fmt.Errorf("frame of %d bytes is shorter than the %d-byte header", len(data), ltpFrameSize)
	}

	tick := &rawTick{
		Mode:         data[0],
		ExchangeType: data[1],
		Token:        decodeToken(data[2 : 2+tokenFieldSize]),
		Sequence:     int64(binary.LittleEndian.Uint64(data[27:35])),
		LTP:          paise(int64(binary.LittleEndian.Uint64(data[43:51]))),
	}
	if ms := int64(binary.LittleEndian.Uint64(data[35:43])); ms > 0 {
		ts := time.UnixMilli(ms).UTC()
		tick.Timestamp = &ts
	}

	if tick.Mode == modeLTP {
		return tick, nil
	}

	if len(data) < quoteFrameSize {
		return nil, fmt.Errorf("mode %d frame of %d bytes is shorter than %d", tick.Mode, len(data), quoteFrameSize)
	}
	volume := int64(binary.LittleEndian.Uint64(data[67:75]))
	tick.Volume = &volume

	if tick.Mode == modeQuote {
		return tick, nil
	}

	if len(data) < snapQuoteFrameSize {
		return nil, fmt.Errorf("mode %d frame of %d bytes is shorter than %d", tick.Mode, len(data), snapQuoteFrameSize)
	}
	oi := int64(binary.LittleEndian.Uint64(data[131:139]))
	tick.OI = &oi
	tick.Bid, tick.Ask = decodeDepth(data[147 : 147+depthLevels*depthEntrySize])

	return tick, nil
}

// decodeDepth walks the 10×20-byte best-five records and returns the
// first buy price as bid and the first sell price as ask. Flag 0 marks
// the buy side.
func decodeDepth(depth []byte) (bid, ask *float64) {
	for level := 0; level < depthLevels; level++ {
		entry := depth[level*depthEntrySize : (level+1)*depthEntrySize]
		flag := binary.LittleEndian.Uint16(entry[0:2])
		price := paise(int64(binary.LittleEndian.Uint64(entry[10:18])))
		if price == 0 {
			continue
		}
		if flag == 0 && bid == nil {
			bid = &price
		}
		if flag != 0 && ask == nil {
			ask = &price
		}
		if bid != nil && ask != nil {
			break
		}
	}
	return bid, ask
}

// decodeToken trims the null padding off the 25-byte ASCII token field.
func decodeToken(field []byte) string {
	return string(bytes.TrimRight(field, "\x00"))
}

func paise(v int64) float64 {
	return float64(v) / 100
}
