package feed

import (
	"time"

	ferrors "indexfeed-trader/internal/errors"
	"indexfeed-trader/internal/eventbus"
	"indexfeed-trader/internal/models"
)

// DecodedEvent is one topic/payload pair produced by decoding a single wire
// frame. A Full packet decodes to two events (tick and depth); every other
// code decodes to at most one.
type DecodedEvent struct {
	Topic   eventbus.Topic
	Payload any
}

// DecodeFrame decodes one binary frame into the event(s) it carries,
// without touching a bus or a connection. Shared by the live client's
// handleFrame and the replay CLI command so both paths exercise exactly the
// same decoding logic.
func DecodeFrame(buf []byte) ([]DecodedEvent, error) {
	if len(buf) < headerLen {
		return nil, ferrors.NewFrameError(-1, len(buf), "frame shorter than header")
	}
	h := DecodeHeader(buf)

	switch h.FeedCode {
	case FeedCodeFull:
		tick, depth, err := DecodeFull(buf)
		if err != nil {
			return nil, err
		}
		return []DecodedEvent{
			{Topic: eventbus.TopicTick, Payload: tick},
			{Topic: eventbus.TopicDepth, Payload: depth},
		}, nil
	case FeedCodeQuote:
		tick, err := DecodeQuote(buf)
		if err != nil {
			return nil, err
		}
		return []DecodedEvent{{Topic: eventbus.TopicTick, Payload: tick}}, nil
	case FeedCodeTicker:
		tick, err := DecodeTicker(buf)
		if err != nil {
			return nil, err
		}
		return []DecodedEvent{{Topic: eventbus.TopicTick, Payload: tick}}, nil
	case FeedCodePrevClose:
		return []DecodedEvent{{Topic: eventbus.TopicPrevClose, Payload: h}}, nil
	case FeedCodeBid20, FeedCodeAsk20:
		secID, levels, err := DecodeDepthLadder(buf)
		if err != nil {
			return nil, err
		}
		md := models.MarketDepth{SecurityID: secID, CapturedAt: time.Now()}
		if h.FeedCode == FeedCodeBid20 {
			md.Bids = levels
		} else {
			md.Asks = levels
		}
		return []DecodedEvent{{Topic: eventbus.TopicDepth, Payload: md}}, nil
	case FeedCodeDisconnection:
		reason, err := DecodeDisconnection(buf)
		if err != nil {
			return nil, err
		}
		return nil, &authClassError{reason: reason}
	default:
		return nil, ferrors.NewFrameError(int(h.FeedCode), len(buf), "unknown feed code")
	}
}
