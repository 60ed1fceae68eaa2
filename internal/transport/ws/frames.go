package ws

import (
	"encoding/json"
	"errors"

	fleetdomain "fleet-tracker/internal/fleet/domain"
	"fleet-tracker/internal/subscription"
)

const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"

	frameAck   = "ack"
	frameError = "error"
)

var errUnknownChannel = errors.New("unknown channel")

// clientFrame is a control message sent by a viewer.
type clientFrame struct {
	Action     string              `json:"action"`
	Channel    string              `json:"channel"`
	EmployeeID *fleetdomain.UserID `json:"employeeId,omitempty"`
}

// serverFrame is a control reply. Location pushes use dispatch.PushEvent instead.
type serverFrame struct {
	Type       string              `json:"type"`
	Action     string              `json:"action,omitempty"`
	Channel    string              `json:"channel,omitempty"`
	EmployeeID *fleetdomain.UserID `json:"employeeId,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// channelOf resolves the frame's channel. An employee channel without employeeId means the
// caller's own channel.
func (f clientFrame) channelOf(caller fleetdomain.UserID) (subscription.Channel, error) {
	switch f.Channel {
	case subscription.KindSupervisory.String():
		return subscription.Supervisory(), nil
	case subscription.KindEmployee.String():
		if f.EmployeeID != nil {
			return subscription.Employee(*f.EmployeeID), nil
		}
		return subscription.Employee(caller), nil
	}
	return subscription.Channel{}, errUnknownChannel
}

func ackFrame(action string, ch subscription.Channel) []byte {
	f := serverFrame{Type: frameAck, Action: action, Channel: ch.Kind.String()}
	if ch.Kind == subscription.KindEmployee {
		id := ch.EmployeeID
		f.EmployeeID = &id
	}
	b, _ := json.Marshal(f)
	return b
}

func errorFrame(action, msg string) []byte {
	b, _ := json.Marshal(serverFrame{Type: frameError, Action: action, Error: msg})
	return b
}
