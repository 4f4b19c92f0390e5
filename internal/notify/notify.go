// Package notify delivers best effort status events to the provisioning authority.
package notify

import (
	"context"

	"github.com/metal-toolbox/osie-runner/internal/model"
)

//go:generate mockgen -source notify.go -destination=../fixtures/mock_notifier.go -package=fixtures

// Notifier delivers an event.
//
// Implementations log delivery failures and never return them,
// a notification never affects the reconciliation flow.
type Notifier interface {
	Notify(ctx context.Context, event model.Event)
}

// Multi fans out each event to all the notifiers in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event model.Event) {
	for _, n := range m {
		n.Notify(ctx, event)
	}
}
