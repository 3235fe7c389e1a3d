package bus

// EventKind discriminates the inbound event types the engine consumes.
type EventKind int

const (
	// EventJoin is a join notification for a chat.
	EventJoin EventKind = iota
	// EventMessage is an inbound chat message.
	EventMessage
	// EventAnswer is a challenge-answer selection.
	EventAnswer
)

// Event is one inbound platform event. Field population depends on Kind;
// ChatID and UserID are always set.
type Event struct {
	Kind   EventKind
	ChatID int64
	UserID int64

	// DisplayName is the acting identity's human-readable name, used in
	// welcome and notification texts.
	DisplayName string

	// Message fields (EventMessage).
	MessageID    int
	Text         string
	Caption      string
	HasVoice     bool
	HasVideoNote bool
	HasAnimation bool
	IsForwarded  bool
	// IsAdmin is the platform-resolved admin status of the sender.
	IsAdmin bool

	// Answer fields (EventAnswer).
	CallbackID string
	Token      string
	Answer     string
}
