package reasoning

import "github.com/pocketomega/reasonloop/internal/conversation"

// Snapshot is the ordered, possibly partial list of reasoning items at one
// instant of a session. It holds every accepted item, plus the in-flight
// candidate when one is being generated.
type Snapshot []conversation.PartialReasoningItem

// Merge projects the accepted items and an optional in-flight candidate into
// a Snapshot. The result shares no memory with its inputs.
func Merge(accepted []conversation.ReasoningItem, inFlight *conversation.PartialReasoningItem) Snapshot {
	out := make(Snapshot, 0, len(accepted)+1)
	for _, item := range accepted {
		out = append(out, item.Partial())
	}
	if inFlight != nil {
		out = append(out, *inFlight)
	}
	return out
}
