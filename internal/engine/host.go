package engine

import (
	"github.com/google/uuid"
)

// Host is the game runtime as seen by the coordinator.
// Notify is only called from the coordinator loop goroutine.
//
// Movement corrections are not pushed through Host: InterceptMove returns
// the pinned position to the runtime's movement path, which cancels the
// move and puts the session back.
type Host interface {
	// Notify delivers user-visible feedback to a session.
	Notify(id uuid.UUID, fb Feedback)
}

// FeedbackKind is the intent of a message shown to a session.
type FeedbackKind string

const (
	// FeedbackMustRegister tells a frozen session how to register.
	FeedbackMustRegister FeedbackKind = "must_register"
	// FeedbackToken shows the session its own identity for copying.
	FeedbackToken FeedbackKind = "token"
	// FeedbackRemind points the session at the external linking system.
	FeedbackRemind FeedbackKind = "remind"
	// FeedbackRegistered confirms an already linked session on /register.
	FeedbackRegistered FeedbackKind = "registered"
	// FeedbackLinked confirms a link made from a side-channel assertion.
	FeedbackLinked FeedbackKind = "linked"
	// FeedbackLinkFailed reports that a link could not be stored.
	FeedbackLinkFailed FeedbackKind = "link_failed"
	// FeedbackRegistrationFull reports that no more sessions may be linked.
	FeedbackRegistrationFull FeedbackKind = "registration_full"
	// FeedbackCheckFailed reports that registration status is unknown.
	FeedbackCheckFailed FeedbackKind = "check_failed"
)

// Feedback is a message for one session. Copy, when set, is text the UI
// should make selectable or copyable on click.
type Feedback struct {
	Kind FeedbackKind
	Text string
	Copy string
}

func mustRegister() Feedback {
	return Feedback{
		Kind: FeedbackMustRegister,
		Text: "You must register using /register and link your account on Discord!",
	}
}

func token(id uuid.UUID) Feedback {
	return Feedback{
		Kind: FeedbackToken,
		Text: "Your UUID: " + id.String() + " (click to copy)",
		Copy: id.String(),
	}
}

func remind() Feedback {
	return Feedback{
		Kind: FeedbackRemind,
		Text: "Please use this UUID to register on the Discord bot.",
	}
}

func registered() Feedback {
	return Feedback{
		Kind: FeedbackRegistered,
		Text: "You are now registered and can move freely!",
	}
}

func linked() Feedback {
	return Feedback{
		Kind: FeedbackLinked,
		Text: "Your account has been successfully registered!",
	}
}

func linkFailed() Feedback {
	return Feedback{
		Kind: FeedbackLinkFailed,
		Text: "Could not complete registration.",
	}
}

func registrationFull() Feedback {
	return Feedback{
		Kind: FeedbackRegistrationFull,
		Text: "Registration is full. Ask an administrator to free a slot.",
	}
}

func checkFailed() Feedback {
	return Feedback{
		Kind: FeedbackCheckFailed,
		Text: "An error occurred while checking your registration status.",
	}
}
