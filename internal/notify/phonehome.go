package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/metal-toolbox/osie-runner/internal/metrics"
	"github.com/metal-toolbox/osie-runner/internal/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	sinkPhoneHome = "phone-home"

	DefaultTimeout = 30 * time.Second
)

var (
	ErrPhoneHome = errors.New("phone-home error")
)

// PhoneHomeURL returns the phone-home endpoint relative to the authority base URL.
func PhoneHomeURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrap(ErrPhoneHome, "base URL: "+err.Error())
	}

	if u.Scheme == "" || u.Host == "" {
		return "", errors.Wrap(ErrPhoneHome, "base URL requires a scheme and host: "+base)
	}

	return u.ResolveReference(&url.URL{Path: "phone-home"}).String(), nil
}

// PhoneHome PUTs events as JSON to the phone-home endpoint.
type PhoneHome struct {
	url    string
	client *http.Client
	logger *logrus.Entry
}

// NewPhoneHome returns a PhoneHome notifier for the endpoint.
func NewPhoneHome(endpoint string, timeout time.Duration, logger *logrus.Entry) *PhoneHome {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &PhoneHome{
		url: endpoint,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Notify implements the Notifier interface.
func (p *PhoneHome) Notify(ctx context.Context, event model.Event) {
	le := p.logger.WithFields(logrus.Fields{"kind": event.Kind(), "url": p.url})
	le.WithField("event", event).Info("phoning home")

	err := p.put(ctx, event)
	metrics.RegisterNotification(sinkPhoneHome, event.Kind(), err)

	if err != nil {
		le.WithError(err).Error("failed to phone-home")
	}
}

func (p *PhoneHome) put(ctx context.Context, event model.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(ErrPhoneHome, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(ErrPhoneHome, err.Error())
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(ErrPhoneHome, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Wrapf(ErrPhoneHome, "code: %d, reason: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	return nil
}
