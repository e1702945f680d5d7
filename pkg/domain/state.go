package domain

// State is the lifecycle state of a component relative to storage.
type State int

// Component lifecycle states.
const (
	StateUnmodified State = iota
	StateNew
	StateModified
	StateMarkedForDeletion
)

const attrState = "state"

// String returns the serialized form used in the state attribute.
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateModified:
		return "modified"
	case StateMarkedForDeletion:
		return "markedForDeletion"
	default:
		return "unmodified"
	}
}

// ParseState is the inverse of String. Empty input means unmodified.
func ParseState(s string) (State, error) {
	switch s {
	case "", "unmodified":
		return StateUnmodified, nil
	case "new":
		return StateNew, nil
	case "modified":
		return StateModified, nil
	case "markedForDeletion":
		return StateMarkedForDeletion, nil
	}
	return StateUnmodified, NewFault(ReasonMalformedElement, "ParseState", "unknown state %q", s)
}

// Action is the storage work implied by a component's state.
type Action string

// Storage actions emitted by ToDb.
const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

const attrAction = "action"

// ActionOf reads the action attribute of a ToDb fragment.
func ActionOf(el *Element) Action {
	if el == nil {
		return ""
	}
	v, _ := el.Attr(attrAction)
	return Action(v)
}
