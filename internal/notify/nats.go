package notify

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/metal-toolbox/osie-runner/internal/metrics"
	"github.com/metal-toolbox/osie-runner/internal/model"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	sinkNATS = "nats"

	DefaultSubject = "osie-runner.events"
)

var (
	ErrNATS = errors.New("nats notifier error")
)

// NATSOptions configure the NATS event mirror.
type NATSOptions struct {
	URL            string
	CredsFile      string
	Subject        string
	ConnectTimeout time.Duration
}

// NATS mirrors events on a NATS subject scoped to the facility.
type NATS struct {
	conn     *nats.Conn
	subject  string
	facility string
	hostname string
	logger   *logrus.Entry
}

type natsEvent struct {
	Timestamp time.Time   `json:"ts"`
	Hostname  string      `json:"hostname"`
	Facility  string      `json:"facility"`
	Event     model.Event `json:"event"`
}

// NewNATS connects to the NATS server and returns a notifier publishing on
// <subject>.<facility>.
func NewNATS(opts NATSOptions, facility string, logger *logrus.Entry) (*NATS, error) {
	if opts.URL == "" {
		return nil, errors.Wrap(ErrNATS, "missing parameter: nats.url")
	}

	if opts.Subject == "" {
		opts.Subject = DefaultSubject
	}

	connOpts := []nats.Option{
		nats.Name(model.AppName),
		nats.RetryOnFailedConnect(true),
	}

	if opts.ConnectTimeout != 0 {
		connOpts = append(connOpts, nats.Timeout(opts.ConnectTimeout))
	}

	if opts.CredsFile != "" {
		connOpts = append(connOpts, nats.UserCredentials(opts.CredsFile))
	}

	conn, err := nats.Connect(opts.URL, connOpts...)
	if err != nil {
		return nil, errors.Wrap(ErrNATS, err.Error())
	}

	// the event envelope identifies the sender, an unknown hostname is left empty.
	hostname, _ := os.Hostname()

	return &NATS{
		conn:     conn,
		subject:  opts.Subject + "." + facility,
		facility: facility,
		hostname: hostname,
		logger:   logger.WithField("subject", opts.Subject),
	}, nil
}

// Subject returns the subject events are published on.
func (n *NATS) Subject() string {
	return n.subject
}

// Notify implements the Notifier interface.
func (n *NATS) Notify(_ context.Context, event model.Event) {
	err := n.publish(event)
	metrics.RegisterNotification(sinkNATS, event.Kind(), err)

	if err != nil {
		n.logger.WithError(err).WithField("kind", event.Kind()).Warn("failed to mirror event")
	}
}

func (n *NATS) publish(event model.Event) error {
	payload, err := json.Marshal(&natsEvent{
		Timestamp: time.Now(),
		Hostname:  n.hostname,
		Facility:  n.facility,
		Event:     event,
	})
	if err != nil {
		return errors.Wrap(ErrNATS, err.Error())
	}

	if err := n.conn.Publish(n.subject, payload); err != nil {
		return errors.Wrap(ErrNATS, err.Error())
	}

	return nil
}

// Close flushes pending events and closes the connection,
// events buffered while the server was never reached are dropped.
func (n *NATS) Close() {
	if n.conn.IsConnected() {
		if err := n.conn.Flush(); err != nil {
			n.logger.WithError(err).Debug("nats flush error")
		}
	}

	n.conn.Close()
}
