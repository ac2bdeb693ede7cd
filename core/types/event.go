package types

// Event is the canonical attribute-map payload handed to emitters. The type
// string namespaces the payload (e.g. "collar.offer.created") and attributes
// carry stringified fields for indexers.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// EventType implements the events.Event interface.
func (e *Event) EventType() string {
	if e == nil {
		return ""
	}
	return e.Type
}
