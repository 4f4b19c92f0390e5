// Package runner drives the reconciliation loop over the documents received from hegel.
package runner

import (
	"context"

	"github.com/metal-toolbox/osie-runner/internal/hegel"
	"github.com/metal-toolbox/osie-runner/internal/metrics"
	"github.com/metal-toolbox/osie-runner/internal/model"
	"github.com/metal-toolbox/osie-runner/internal/notify"
	"github.com/metal-toolbox/osie-runner/internal/reconcile"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrRunner = errors.New("runner error")
)

// Reconciler converges the machine to a desired state document.
type Reconciler interface {
	Wipe(ctx context.Context, ds *model.DesiredState) error
	Handle(ctx context.Context, ds *model.DesiredState) (reconcile.Outcome, error)
}

// A Runner consumes desired state documents one at a time, a document is
// handled to completion before the next one is received.
type Runner struct {
	logger     *logrus.Entry
	subscriber hegel.Subscriber
	reconciler Reconciler
	notifier   notify.Notifier
}

func New(logger *logrus.Entry, subscriber hegel.Subscriber, reconciler Reconciler, notifier notify.Notifier) *Runner {
	return &Runner{
		logger:     logger,
		subscriber: subscriber,
		reconciler: reconciler,
		notifier:   notifier,
	}
}

// Run connects to hegel, wipes the disks and then handles each document received
// until a handler signals exit or a fatal error is returned.
func (r *Runner) Run(ctx context.Context) error {
	raw, err := r.subscriber.Connect(ctx)
	if err != nil {
		return errors.Wrap(ErrRunner, err.Error())
	}

	defer r.subscriber.Close()

	ds, err := r.decode(raw)
	if err != nil {
		r.notifier.Notify(ctx, model.NewFailureEvent(err.Error()))
		return errors.Wrap(ErrRunner, err.Error())
	}

	r.logger.Info("wiping disk partitions")

	if err := r.reconciler.Wipe(ctx, ds); err != nil {
		r.notifier.Notify(ctx, model.NewFailureEvent(err.Error()))
		return err
	}

	r.logger.Info("running subscribe loop")

	for {
		if ds != nil {
			outcome, err := r.reconciler.Handle(ctx, ds)
			if err != nil {
				return err
			}

			if outcome == reconcile.Exit {
				r.logger.WithField("state", ds.State).Info("handler signaled exit")
				return nil
			}
		}

		r.logger.Debug("about to monitor")

		raw, err := r.subscriber.Next(ctx)
		if err != nil {
			return errors.Wrap(ErrRunner, err.Error())
		}

		// a document that does not decode is reported and skipped,
		// the machine stays as is until the next update.
		ds, err = r.decode(raw)
		if err != nil {
			r.logger.WithError(err).Error("desired state decode error")
			r.notifier.Notify(ctx, model.NewFailureEvent(err.Error()))
		}
	}
}

func (r *Runner) decode(raw []byte) (*model.DesiredState, error) {
	ds, err := model.ParseDesiredState(raw)
	if err != nil {
		metrics.DocumentsCounter.WithLabelValues("invalid").Inc()
		return nil, err
	}

	metrics.DocumentsCounter.WithLabelValues(string(ds.State)).Inc()

	instanceState := ""
	if ds.Instance != nil {
		instanceState = ds.Instance.State
	}

	r.logger.WithFields(logrus.Fields{
		"hardwareID":    ds.ID,
		"state":         ds.State,
		"instanceState": instanceState,
	}).Info("context updated")

	r.logger.Info(ds.Sanitized())

	return ds, nil
}
