package hegel

import (
	sw "github.com/filanov/stateswitch"
)

const (
	// connection states
	StateDisconnected sw.State = "disconnected"
	StateConnecting   sw.State = "connecting"
	StateConnected    sw.State = "connected"

	// connection transitions
	TransitionDial        sw.TransitionType = "dial"
	TransitionEstablished sw.TransitionType = "established"
	TransitionLost        sw.TransitionType = "lost"
)

// connection is the stateswitch.StateSwitch for the hegel connection.
type connection struct {
	state sw.State
}

func (c *connection) State() sw.State {
	return c.state
}

func (c *connection) SetState(state sw.State) error {
	c.state = state
	return nil
}

// newConnectionStateMachine returns the hegel connection statemachine,
// transition runs the given handler.
func newConnectionStateMachine(transition sw.Transition) sw.StateMachine {
	m := sw.NewStateMachine()

	// a dial is retried until the connection is established
	m.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionDial,
		SourceStates:     sw.States{StateDisconnected, StateConnecting},
		DestinationState: StateConnecting,
		Transition:       transition,
		Documentation: sw.TransitionRuleDoc{
			Name:        "Dial",
			Description: "Resolve the facility hegel authority and attempt a connection, after the scheduled backoff.",
		},
	})

	m.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionEstablished,
		SourceStates:     sw.States{StateConnecting},
		DestinationState: StateConnected,
		Transition:       transition,
		Documentation: sw.TransitionRuleDoc{
			Name:        "Established",
			Description: "The current document was fetched and the subscription stream is open.",
		},
	})

	m.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionLost,
		SourceStates:     sw.States{StateConnected},
		DestinationState: StateDisconnected,
		Transition:       transition,
		Documentation: sw.TransitionRuleDoc{
			Name:        "Lost",
			Description: "The subscription stream returned a transport error.",
		},
	})

	m.DescribeState(StateDisconnected, sw.StateDoc{Name: string(StateDisconnected), Description: "No hegel connection."})
	m.DescribeState(StateConnecting, sw.StateDoc{Name: string(StateConnecting), Description: "Connection attempts are in progress."})
	m.DescribeState(StateConnected, sw.StateDoc{Name: string(StateConnected), Description: "Subscribed to desired state updates."})

	return m
}

// ConnectionStateMachineJSON returns the JSON description of the hegel connection statemachine.
func ConnectionStateMachineJSON() ([]byte, error) {
	return newConnectionStateMachine(nil).AsJSON()
}
