package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	alertapp "andon-board/internal/alerts/application"
	"andon-board/internal/observability/metrics"
	"andon-board/internal/stations/application"
)

// NATSConn is the subset of *nats.Conn used for publishing.
type NATSConn interface {
	Publish(subject string, data []byte) error
}

// NATSOptions configures ConnectNATS.
type NATSOptions struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

// ConnectNATS dials NATS with reconnect handling that logs through logger.
func ConnectNATS(opts NATSOptions, logger zerolog.Logger) (*nats.Conn, error) {
	if opts.URL == "" {
		return nil, errors.New("nats: empty url")
	}
	return nats.Connect(opts.URL,
		nats.Name(opts.Name),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to NATS")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error().Err(err).Str("subject", subject).Msg("NATS error")
		}),
	)
}

// NATSMessage is the JSON body published for each station event.
type NATSMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NATSPublisher publishes station events for light-tower and PLC bridges.
// Transitions go to <prefix>.<station_id>, resets to <prefix>.reset and
// alert lifecycle events to <prefix>.<station_id>.alerts.
type NATSPublisher struct {
	conn   NATSConn
	prefix string
	logger zerolog.Logger
}

// NewNATSPublisher constructs a publisher.
func NewNATSPublisher(conn NATSConn, prefix string, logger zerolog.Logger) (*NATSPublisher, error) {
	if conn == nil {
		return nil, errors.New("nats publisher: nil connection")
	}
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "andon.station"
	}
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}, nil
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(event application.StationEvent) string {
	if id := event.StationID(); id != "" {
		return p.prefix + "." + sanitizeToken(id)
	}
	return p.prefix + ".reset"
}

// Notify implements application.Notifier.
func (p *NATSPublisher) Notify(_ context.Context, event application.StationEvent) {
	if p == nil {
		return
	}
	p.publish(p.Subject(event), NATSMessage{Type: event.Type, Data: event.Payload()})
}

// Alerts returns a notifier for alert lifecycle events.
func (p *NATSPublisher) Alerts() alertapp.Notifier {
	return alertapp.NotifierFunc(func(_ context.Context, event alertapp.AlertEvent) {
		if p == nil {
			return
		}
		subject := p.prefix + "." + sanitizeToken(event.Alert.StationID) + ".alerts"
		p.publish(subject, NATSMessage{Type: event.Type, Data: event.Alert})
	})
}

func (p *NATSPublisher) publish(subject string, msg NATSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		metrics.IncNotification("nats", metrics.ResultError)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		metrics.IncNotification("nats", metrics.ResultError)
		p.logger.Warn().Err(err).Str("subject", subject).Msg("NATS publish failed")
		return
	}
	metrics.IncNotification("nats", metrics.ResultSuccess)
}

// sanitizeToken keeps a station id usable as a single subject token.
func sanitizeToken(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, id)
}
