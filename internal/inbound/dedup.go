package inbound

import (
	"fmt"
	"strings"

	"github.com/memohai/chatrelay/internal/dialogue"
)

// DedupPolicy selects how a repeated inbound message is recognised.
type DedupPolicy string

const (
	// DedupLastText treats the message as a duplicate when the text of the last
	// stored message equals its message_id.
	DedupLastText DedupPolicy = "last_text"
	// DedupRecentIDs matches message_id against the ids stored on recent user messages.
	DedupRecentIDs DedupPolicy = "recent_ids"
	// DedupBoth applies both checks.
	DedupBoth DedupPolicy = "both"
)

const defaultDedupWindow = 32

// ParseDedupPolicy validates a configured policy name. Empty selects DedupBoth.
func ParseDedupPolicy(raw string) (DedupPolicy, error) {
	switch p := DedupPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return DedupBoth, nil
	case DedupLastText, DedupRecentIDs, DedupBoth:
		return p, nil
	default:
		return "", fmt.Errorf("unknown dedup policy %q", raw)
	}
}

// IsDuplicate reports whether messageID was already accepted on d.
func (p DedupPolicy) IsDuplicate(d dialogue.Dialogue, messageID string, window int) bool {
	if messageID == "" || len(d.Messages) == 0 {
		return false
	}
	switch p {
	case DedupLastText:
		return lastTextMatches(d, messageID)
	case DedupRecentIDs:
		return recentIDMatches(d, messageID, window)
	default:
		return lastTextMatches(d, messageID) || recentIDMatches(d, messageID, window)
	}
}

func lastTextMatches(d dialogue.Dialogue, messageID string) bool {
	last, ok := d.Last()
	return ok && last.Text == messageID
}

func recentIDMatches(d dialogue.Dialogue, messageID string, window int) bool {
	if window <= 0 {
		window = defaultDedupWindow
	}
	start := len(d.Messages) - window
	if start < 0 {
		start = 0
	}
	for i := len(d.Messages) - 1; i >= start; i-- {
		if d.Messages[i].MessageID == messageID {
			return true
		}
	}
	return false
}
