package model

const (
	EventTypeFailure      = "failure"
	EventTypeProvisioning = "provisioning.104.01"

	provisioningEventBody = "Device connected to DHCP system"
)

// Event is a phone-home notification body.
//
// Exactly one of the shapes is set,
//
//	{"instance_id": "..."}
//	{"type": "failure", "reason": "..."}
//	{"type": "provisioning.104.01", "body": "..."}
type Event struct {
	InstanceID string `json:"instance_id,omitempty"`
	Type       string `json:"type,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Body       string `json:"body,omitempty"`
}

// Kind returns a short label for the event, used in logs and metrics.
func (e Event) Kind() string {
	if e.Type != "" {
		return e.Type
	}

	return "instance"
}

func NewInstanceEvent(id string) Event {
	return Event{InstanceID: id}
}

func NewFailureEvent(reason string) Event {
	return Event{Type: EventTypeFailure, Reason: reason}
}

func NewProvisioningEvent() Event {
	return Event{Type: EventTypeProvisioning, Body: provisioningEventBody}
}
