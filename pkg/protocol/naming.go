package protocol

import (
	"strconv"
	"strings"
	"sync"
)

// Ancillary IDs are human-addressable names of the form "{Segment} {Number}",
// where the number is spelled out in English for 1-99 ("Calculator One",
// "Calculator Twenty-One") and written in digits from 100 up.

// maxWordNumber is the largest ordinal that gets a word name.
const maxWordNumber = 99

var ones = []string{
	"Zero", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight",
	"Nine", "Ten", "Eleven", "Twelve", "Thirteen", "Fourteen", "Fifteen",
	"Sixteen", "Seventeen", "Eighteen", "Nineteen",
}

var tens = []string{
	"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty", "Seventy",
	"Eighty", "Ninety",
}

// NumberToWord converts an ordinal to its English word form
// (1 -> "One", 21 -> "Twenty-One"). Numbers above 99 use digits.
func NumberToWord(n int) string {
	if n < 0 || n > maxWordNumber {
		return strconv.Itoa(n)
	}
	if n < 20 {
		return ones[n]
	}
	if n%10 == 0 {
		return tens[n/10]
	}
	return tens[n/10] + "-" + ones[n%10]
}

var wordMapOnce sync.Once
var wordMap map[string]int

// WordToNumber converts a word form back to its number ("One" -> 1,
// case-insensitive). Plain digit strings are accepted too ("100" -> 100).
// Returns -1 if the word is not recognized.
func WordToNumber(word string) int {
	wordMapOnce.Do(func() {
		wordMap = make(map[string]int, maxWordNumber+1)
		for n := 0; n <= maxWordNumber; n++ {
			wordMap[strings.ToLower(NumberToWord(n))] = n
		}
	})
	if n, ok := wordMap[strings.ToLower(word)]; ok {
		return n
	}
	if n, err := strconv.Atoi(word); err == nil && n >= 0 {
		return n
	}
	return -1
}

// AncillaryID builds the display ID from a segment name and ordinal
// ("calculator", 1 -> "Calculator One").
func AncillaryID(segment string, n int) string {
	return capitalize(segment) + " " + NumberToWord(n)
}

// AncillaryNumber extracts the ordinal from an ancillary ID
// ("Calculator Twenty-One" -> 21). Returns -1 if it cannot be parsed.
func AncillaryNumber(ancillaryID string) int {
	fields := strings.Fields(ancillaryID)
	if len(fields) == 0 {
		return -1
	}
	return WordToNumber(fields[len(fields)-1])
}

// AncillarySegment extracts the lowercased segment from an ancillary ID
// ("Calculator One" -> "calculator").
func AncillarySegment(ancillaryID string) string {
	fields := strings.Fields(ancillaryID)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// AncillarySlug converts an ancillary ID to its filesystem form
// ("Calculator One" -> "calculator-one").
func AncillarySlug(ancillaryID string) string {
	return strings.ToLower(strings.ReplaceAll(ancillaryID, " ", "-"))
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// RefKind distinguishes how a command reference should be resolved.
type RefKind int

// Reference kinds.
const (
	RefBead RefKind = iota
	RefAncillary
)

// Ref is a parsed assignment reference: either a bead ID or an ancillary name.
type Ref struct {
	Kind  RefKind
	Value string
}

// ParseRef interprets a reference string in the context of a segment.
// Rules: a hyphen means bead ID ("loom-a1b2"); a space means ancillary name
// ("Calculator One"); a bare number word is expanded to the segment's
// ancillary ("one" -> "Calculator One"); anything else is a bead ID.
func ParseRef(s, segment string) Ref {
	switch {
	case strings.Contains(s, "-") && WordToNumber(s) < 0:
		return Ref{Kind: RefBead, Value: s}
	case strings.Contains(s, " "):
		return Ref{Kind: RefAncillary, Value: s}
	case WordToNumber(s) >= 0:
		return Ref{Kind: RefAncillary, Value: capitalize(segment) + " " + NumberToWord(WordToNumber(s))}
	default:
		return Ref{Kind: RefBead, Value: s}
	}
}
