package cli

import (
	"testing"
	"time"

	"indexfeed-trader/internal/config"
)

func TestParseOffsetLocation(t *testing.T) {
	loc := parseOffsetLocation("+05:30")
	_, offset := time.Now().In(loc).Zone()
	if offset != 5*3600+30*60 {
		t.Fatalf("expected +05:30 offset, got %d seconds", offset)
	}

	negLoc := parseOffsetLocation("-03:00")
	_, negOffset := time.Now().In(negLoc).Zone()
	if negOffset != -3*3600 {
		t.Fatalf("expected -03:00 offset, got %d seconds", negOffset)
	}
}

func TestParseOffsetLocationFallsBackToUTC(t *testing.T) {
	loc := parseOffsetLocation("not-an-offset")
	if loc != time.UTC {
		t.Fatalf("expected UTC fallback, got %v", loc)
	}
}

func TestInstrumentRefs(t *testing.T) {
	entries := []config.SubscriptionEntry{{Segment: "IDX_I", SecurityID: "13"}}
	refs := instrumentRefs(entries)
	if len(refs) != 1 || refs[0].SecurityID != "13" || refs[0].ExchangeSegment != "IDX_I" {
		t.Fatalf("unexpected refs: %+v", refs)
	}
}
