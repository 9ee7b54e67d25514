package domain

// Participant is the authenticated identity attached to every request.
// The display name is a snapshot taken at send time, not a live join.
// Privileged is derived from the platform role and gates redaction and
// clear-chat.
type Participant struct {
	ID         string
	Name       string
	Privileged bool
}
