package cli

import (
	"strings"
	"testing"

	"indexfeed-trader/internal/models"
)

func TestParseInstrumentCSV(t *testing.T) {
	input := "security_id,symbol,segment,lot_size,tick_size\n" +
		"13,NIFTY,index,75,0.05\n" +
		"26000,BANKNIFTY,index,25,0.05\n"

	instruments, err := parseInstrumentCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(instruments) != 2 {
		t.Fatalf("expected 2 instruments, got %d", len(instruments))
	}
	want := models.Instrument{SecurityID: "13", Symbol: "NIFTY", Segment: models.SegmentIndex, LotSize: 75, TickSize: 0.05}
	if instruments[0] != want {
		t.Fatalf("unexpected first instrument: %+v", instruments[0])
	}
}

func TestParseInstrumentCSVMissingColumn(t *testing.T) {
	input := "security_id,symbol\n13,NIFTY\n"
	if _, err := parseInstrumentCSV(strings.NewReader(input)); err == nil {
		t.Fatal("expected an error for a missing required column")
	}
}
