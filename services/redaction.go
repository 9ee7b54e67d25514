package services

import (
	"fmt"

	"staffroom/domain"
	"staffroom/errors"
)

// RedactionGuard mediates destructive operations on the room history.
// A message may be redacted only by a privileged actor and only once at
// least one recipient has acknowledged it, which preserves a minimal audit
// guarantee. Clear-chat skips the acknowledgement check but not the role
// check.
type RedactionGuard struct{}

func NewRedactionGuard() RedactionGuard {
	return RedactionGuard{}
}

// CheckRole rejects non-privileged actors. It runs before any lookup so a
// caller without the role is refused even for purged or already-redacted
// targets.
func (RedactionGuard) CheckRole(actor domain.Participant) error {
	if !actor.Privileged {
		return fmt.Errorf("%w: participant %s may not redact", errors.ErrPermission, actor.ID)
	}
	return nil
}

func (g RedactionGuard) CheckRedact(actor domain.Participant, target domain.Message) error {
	if err := g.CheckRole(actor); err != nil {
		return err
	}
	if len(target.SeenBy) == 0 {
		return fmt.Errorf("%w: message %s not yet acknowledged", errors.ErrPrecondition, target.ID)
	}
	return nil
}

func (RedactionGuard) CheckClear(actor domain.Participant) error {
	if !actor.Privileged {
		return fmt.Errorf("%w: participant %s may not clear the room", errors.ErrPermission, actor.ID)
	}
	return nil
}
