package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"venue-pickup-service/internal/domain"
	"venue-pickup-service/internal/platform/obs"

	"github.com/go-faster/errors"
	"github.com/nats-io/nats.go"
)

const requestIDHeader = "X-Request-ID"

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSPublisher publishes committed ledger changes on "<prefix>.<venue>.<date>" so
// staff devices can subscribe to one venue's day, or to "<prefix>.<venue>.>".
type NATSPublisher struct {
	nc      *nats.Conn
	pub     msgPublisher
	prefix  string
	metrics PublisherMetrics
}

func NewNATSPublisher(url, prefix string, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("venue-pickup-service"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			obs.Logger(context.Background()).WithError(err).Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			obs.Logger(context.Background()).Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			obs.Logger(context.Background()).Info("nats closed")
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connect nats %q", url)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}

	p := newPublisher(nc, prefix, m)
	p.nc = nc
	return p, nil
}

func newPublisher(pub msgPublisher, prefix string, m PublisherMetrics) *NATSPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "pickup"
	}
	return &NATSPublisher{pub: pub, prefix: prefix, metrics: m}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// Subject returns the subject changes of one venue's business date are published on.
func (p *NATSPublisher) Subject(venueID string, date domain.BusinessDate) string {
	return p.prefix + "." + subjectToken(venueID) + "." + subjectToken(date.String())
}

func (p *NATSPublisher) PublishLedgerChange(ctx context.Context, change domain.LedgerChange) error {
	subject := p.Subject(change.VenueID.String(), change.BusinessDate)

	b, err := json.Marshal(change)
	if err != nil {
		return errors.Wrap(err, "marshal ledger change")
	}

	msg := nats.NewMsg(subject)
	msg.Data = b
	if id := obs.RequestID(ctx); id != "" {
		msg.Header.Set(requestIDHeader, id)
	}

	obs.Logger(ctx).WithField("subject", subject).Debug("nats publish")

	start := time.Now()
	err = p.pub.PublishMsg(msg)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return errors.Wrapf(err, "publish %s", subject)
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
