package protocol_test

import (
	"testing"

	"loom/pkg/protocol"
)

func TestNumberToWord(t *testing.T) {
	tests := []struct {
		n        int
		expected string
	}{
		{1, "One"},
		{9, "Nine"},
		{13, "Thirteen"},
		{20, "Twenty"},
		{21, "Twenty-One"},
		{42, "Forty-Two"},
		{99, "Ninety-Nine"},
		{100, "100"},
		{137, "137"},
	}

	for _, tt := range tests {
		got := protocol.NumberToWord(tt.n)
		if got != tt.expected {
			t.Errorf("NumberToWord(%d) = %q, want %q", tt.n, got, tt.expected)
		}
	}
}

func TestWordToNumber(t *testing.T) {
	tests := []struct {
		word     string
		expected int
	}{
		{"One", 1},
		{"one", 1},
		{"TWENTY-ONE", 21},
		{"Ninety-Nine", 99},
		{"100", 100},
		{"", -1},
		{"Eleventy", -1},
	}

	for _, tt := range tests {
		got := protocol.WordToNumber(tt.word)
		if got != tt.expected {
			t.Errorf("WordToNumber(%q) = %d, want %d", tt.word, got, tt.expected)
		}
	}
}

func TestWordRoundTrip(t *testing.T) {
	for n := 1; n <= 99; n++ {
		if got := protocol.WordToNumber(protocol.NumberToWord(n)); got != n {
			t.Fatalf("round trip for %d came back as %d", n, got)
		}
	}
}

func TestAncillaryID(t *testing.T) {
	if got := protocol.AncillaryID("calculator", 1); got != "Calculator One" {
		t.Errorf("AncillaryID = %q, want %q", got, "Calculator One")
	}
	if got := protocol.AncillaryID("loom", 150); got != "Loom 150" {
		t.Errorf("AncillaryID = %q, want %q", got, "Loom 150")
	}
}

func TestAncillaryHelpers(t *testing.T) {
	id := "Calculator Twenty-One"
	if got := protocol.AncillaryNumber(id); got != 21 {
		t.Errorf("AncillaryNumber(%q) = %d, want 21", id, got)
	}
	if got := protocol.AncillarySegment(id); got != "calculator" {
		t.Errorf("AncillarySegment(%q) = %q, want calculator", id, got)
	}
	if got := protocol.AncillarySlug(id); got != "calculator-twenty-one" {
		t.Errorf("AncillarySlug(%q) = %q", id, got)
	}
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		name     string
		ref      string
		segment  string
		kind     protocol.RefKind
		expected string
	}{
		{"bead id", "loom-a1b2", "calculator", protocol.RefBead, "loom-a1b2"},
		{"full ancillary name", "Calculator One", "calculator", protocol.RefAncillary, "Calculator One"},
		{"bare number word", "one", "calculator", protocol.RefAncillary, "Calculator One"},
		{"hyphenated number word", "twenty-one", "calculator", protocol.RefAncillary, "Calculator Twenty-One"},
		{"bare token falls back to bead", "a1b2c3", "calculator", protocol.RefBead, "a1b2c3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := protocol.ParseRef(tt.ref, tt.segment)
			if got.Kind != tt.kind || got.Value != tt.expected {
				t.Errorf("ParseRef(%q, %q) = {%v %q}, want {%v %q}",
					tt.ref, tt.segment, got.Kind, got.Value, tt.kind, tt.expected)
			}
		})
	}
}
