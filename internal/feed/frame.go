package feed

import (
	"encoding/binary"
	"math"
	"time"

	ferrors "indexfeed-trader/internal/errors"
	"indexfeed-trader/internal/models"
)

// FeedCode identifies the kind of packet a frame carries. The vendor wire
// format has no third-party Go binding in this codebase's dependency
// corpus, so frames are decoded by hand with encoding/binary rather than
// through a generated or reflected codec.
type FeedCode uint8

const (
	FeedCodeTicker       FeedCode = 2
	FeedCodeQuote        FeedCode = 4
	FeedCodeOI           FeedCode = 5
	FeedCodePrevClose    FeedCode = 6
	FeedCodeFull         FeedCode = 8
	FeedCodeBid20        FeedCode = 41
	FeedCodeAsk20        FeedCode = 51
	FeedCodeDisconnection FeedCode = 50
)

const headerLen = 8

// Header is the fixed 8-byte prefix on every vendor frame.
type Header struct {
	FeedCode        FeedCode
	MessageLength   uint16
	ExchangeSegment uint8
	SecurityID      uint32
}

// DecodeHeader reads the 8-byte frame header. The caller must have already
// checked len(buf) >= headerLen.
func DecodeHeader(buf []byte) Header {
	return Header{
		FeedCode:        FeedCode(buf[0]),
		MessageLength:   binary.LittleEndian.Uint16(buf[1:3]),
		ExchangeSegment: buf[3],
		SecurityID:      binary.LittleEndian.Uint32(buf[4:8]),
	}
}

// fullPacketLen is the byte count of the fixed quote block (offsets 8..62).
const fullPacketLen = 54

// depthLevelLen is the byte size of one bid/ask rung inside a Full packet.
const depthLevelLen = 20

// DecodeFull parses a code-8 Full packet: quote fields plus five depth
// levels, starting at byte 8. It returns a FrameError rather than panicking
// when buf is shorter than the layout requires.
func DecodeFull(buf []byte) (models.Tick, models.MarketDepth, error) {
	if len(buf) < headerLen+fullPacketLen+5*depthLevelLen {
		return models.Tick{}, models.MarketDepth{}, ferrors.NewFrameError(int(FeedCodeFull), len(buf), "full packet too short")
	}

	h := DecodeHeader(buf)
	secID := securityIDString(h.ExchangeSegment, h.SecurityID)
	p := buf[headerLen:]

	now := time.Now()
	tick := models.Tick{
		SecurityID:   secID,
		LTP:          float64(readF32(p, 0)),
		LTQ:          int32(readI16(p, 4)),
		LTT:          time.Unix(int64(readI32(p, 6)), 0),
		ATP:          float64(readF32(p, 10)),
		Volume:       int64(readI32(p, 14)),
		TotalSellQty: int64(readI32(p, 18)),
		TotalBuyQty:  int64(readI32(p, 22)),
		Open:         float64(readF32(p, 38)),
		Close:        float64(readF32(p, 42)),
		High:         float64(readF32(p, 46)),
		Low:          float64(readF32(p, 50)),
		CapturedAt:   now,
	}

	depth := models.MarketDepth{SecurityID: secID, CapturedAt: now}
	levelBase := fullPacketLen
	for i := 0; i < 5; i++ {
		lv := p[levelBase+i*depthLevelLen : levelBase+(i+1)*depthLevelLen]
		bidQty := readI32(lv, 0)
		askQty := readI32(lv, 4)
		bidOrders := readI16(lv, 8)
		askOrders := readI16(lv, 10)
		bidPrice := readF32(lv, 12)
		askPrice := readF32(lv, 16)
		depth.Bids = append(depth.Bids, models.DepthLevel{Price: float64(bidPrice), Quantity: int64(bidQty), Orders: int32(bidOrders)})
		depth.Asks = append(depth.Asks, models.DepthLevel{Price: float64(askPrice), Quantity: int64(askQty), Orders: int32(askOrders)})
	}

	return tick, depth, nil
}

// DecodeQuote parses a code-4 Quote packet: the reduced form emitted when
// only OHLC/totals are available and no depth accompanies the tick. It
// reuses the Full packet's leading layout and stops before the depth block.
func DecodeQuote(buf []byte) (models.Tick, error) {
	if len(buf) < headerLen+fullPacketLen {
		return models.Tick{}, ferrors.NewFrameError(int(FeedCodeQuote), len(buf), "quote packet too short")
	}
	h := DecodeHeader(buf)
	p := buf[headerLen:]
	return models.Tick{
		SecurityID:   securityIDString(h.ExchangeSegment, h.SecurityID),
		LTP:          float64(readF32(p, 0)),
		LTQ:          int32(readI16(p, 4)),
		LTT:          time.Unix(int64(readI32(p, 6)), 0),
		ATP:          float64(readF32(p, 10)),
		Volume:       int64(readI32(p, 14)),
		TotalSellQty: int64(readI32(p, 18)),
		TotalBuyQty:  int64(readI32(p, 22)),
		Open:         float64(readF32(p, 38)),
		Close:        float64(readF32(p, 42)),
		High:         float64(readF32(p, 46)),
		Low:          float64(readF32(p, 50)),
		CapturedAt:   time.Now(),
	}, nil
}

// DecodeTicker parses a code-2 Ticker packet into a price-only tick with
// zeroed depth metrics: just LTP and LTT beyond the header.
func DecodeTicker(buf []byte) (models.Tick, error) {
	if len(buf) < headerLen+8 {
		return models.Tick{}, ferrors.NewFrameError(int(FeedCodeTicker), len(buf), "ticker packet too short")
	}
	h := DecodeHeader(buf)
	p := buf[headerLen:]
	return models.Tick{
		SecurityID: securityIDString(h.ExchangeSegment, h.SecurityID),
		LTP:        float64(readF32(p, 0)),
		LTT:        time.Unix(int64(readI32(p, 4)), 0),
		CapturedAt: time.Now(),
	}, nil
}

// DisconnectionReason is the numeric termination code in a code-50 packet.
type DisconnectionReason int32

const (
	ReasonDuplicateConnection DisconnectionReason = 701
	ReasonTokenExpired        DisconnectionReason = 702
	ReasonInvalidClient       DisconnectionReason = 703
	ReasonMaxConnections      DisconnectionReason = 704
	ReasonSubscriptionLimit   DisconnectionReason = 705
	ReasonClientTimeout       DisconnectionReason = 706
	ReasonServerMaintenance   DisconnectionReason = 707
)

// authClassReasons are disconnection reasons after which the client must not
// auto-reconnect: the session itself is no longer valid.
var authClassReasons = map[DisconnectionReason]bool{
	ReasonDuplicateConnection: true,
	ReasonTokenExpired:        true,
	ReasonInvalidClient:       true,
	ReasonMaxConnections:      true,
	ReasonSubscriptionLimit:   true,
}

// IsAuthClass reports whether reconnecting after this reason would be futile.
func (r DisconnectionReason) IsAuthClass() bool {
	return authClassReasons[r]
}

// DecodeDisconnection parses a code-50 server-initiated termination packet.
func DecodeDisconnection(buf []byte) (DisconnectionReason, error) {
	if len(buf) < headerLen+4 {
		return 0, ferrors.NewFrameError(int(FeedCodeDisconnection), len(buf), "disconnection packet too short")
	}
	return DisconnectionReason(readI32(buf[headerLen:], 0)), nil
}

// DecodeDepthLadder parses a code-41/51 20-level depth packet from the
// dedicated depth connection. Each level is 16 bytes: price f64, quantity
// u32, orders u32, all little-endian.
func DecodeDepthLadder(buf []byte) (securityID string, levels []models.DepthLevel, err error) {
	if len(buf) < headerLen {
		return "", nil, ferrors.NewFrameError(0, len(buf), "depth ladder packet too short")
	}
	h := DecodeHeader(buf)
	p := buf[headerLen:]
	const levelLen = 16
	n := len(p) / levelLen
	if n > 20 {
		n = 20
	}
	levels = make([]models.DepthLevel, 0, n)
	for i := 0; i < n; i++ {
		lv := p[i*levelLen : (i+1)*levelLen]
		price := math.Float64frombits(binary.LittleEndian.Uint64(lv[0:8]))
		qty := binary.LittleEndian.Uint32(lv[8:12])
		orders := binary.LittleEndian.Uint32(lv[12:16])
		levels = append(levels, models.DepthLevel{Price: price, Quantity: int64(qty), Orders: int32(orders)})
	}
	return securityIDString(h.ExchangeSegment, h.SecurityID), levels, nil
}

func securityIDString(segment uint8, id uint32) string {
	return itoa(uint64(id))
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func readF32(p []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(p[off : off+4]))
}

func readI32(p []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(p[off : off+4]))
}

func readI16(p []byte, off int) int16 {
	return int16(binary.LittleEndian.Uint16(p[off : off+2]))
}
