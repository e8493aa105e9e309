package cli

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/fmueller/voicebox/internal/store"
)

const previewLength = 60

// formatClock renders a duration in seconds as m:ss, matching how the
// recordings are listed everywhere.
func formatClock(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	total := int(math.Round(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// previewText collapses whitespace and truncates to the listing preview
// length, appending an ellipsis when something was cut.
func previewText(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(collapsed) <= previewLength {
		return collapsed
	}

	runes := []rune(collapsed)
	return strings.TrimSpace(string(runes[:previewLength])) + "..."
}

func statusGlyph(status store.Status) string {
	switch status {
	case store.StatusDone:
		return "+"
	case store.StatusError:
		return "!"
	default:
		return "."
	}
}

// listingLabel is the one-line description of a recording: its title when
// one exists, otherwise a transcript preview, otherwise the status.
func listingLabel(rec store.Recording) string {
	if rec.Title != "" {
		return rec.Title
	}
	if rec.Text != "" {
		return previewText(rec.Text)
	}
	if rec.Status == store.StatusError && rec.ErrorMessage != "" {
		return rec.ErrorMessage
	}
	return "awaiting transcription"
}
