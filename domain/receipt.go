package domain

// ReceiptState is the tick status a given viewer derives from a message.
// Receipts only matter to the author: everyone else gets ReceiptNone.
type ReceiptState string

const (
	// ReceiptNone means the viewer is not the author; no tick is rendered.
	ReceiptNone ReceiptState = "none"
	// ReceiptUnseen means the viewer authored the message and nobody has
	// acknowledged it yet (single tick).
	ReceiptUnseen ReceiptState = "unseen"
	// ReceiptSeenByOthers means at least one recipient acknowledged the
	// viewer's message (double tick).
	ReceiptSeenByOthers ReceiptState = "seen"
)

// ReceiptStateFor derives the tick state of a message for a viewer.
// All call sites go through here instead of inspecting SeenBy directly.
func ReceiptStateFor(m Message, viewerID string) ReceiptState {
	if m.AuthorID != viewerID {
		return ReceiptNone
	}
	if len(m.SeenBy) > 0 {
		return ReceiptSeenByOthers
	}
	return ReceiptUnseen
}
