package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"andon-board/internal/observability/metrics"
	"andon-board/internal/stations/application"
	stations "andon-board/internal/stations/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type delivery struct {
	id      string
	content string
}

// WebhookNotifier renders station events and delivers them on background
// workers. Notify never blocks on the network: a full queue drops the
// message, and failures are only logged and counted.
type WebhookNotifier struct {
	channel      Channel
	template     *Template
	clock        Clock
	location     *time.Location
	timeout      time.Duration
	dedupeWindow time.Duration
	workers      int
	logger       zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan delivery
	wg     sync.WaitGroup

	sentMu sync.Mutex
	sent   map[string]time.Time
}

// Option configures the notifier.
type Option func(*WebhookNotifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *WebhookNotifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithLocation sets the timezone used in rendered timestamps.
func WithLocation(loc *time.Location) Option {
	return func(n *WebhookNotifier) {
		if loc != nil {
			n.location = loc
		}
	}
}

// WithRequestTimeout bounds each delivery.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *WebhookNotifier) {
		if timeout > 0 {
			n.timeout = timeout
		}
	}
}

// WithQueue sizes the delivery queue and worker pool.
func WithQueue(size, workers int) Option {
	return func(n *WebhookNotifier) {
		if size > 0 {
			n.queue = make(chan delivery, size)
		}
		if workers > 0 {
			n.workers = workers
		}
	}
}

// WithDedupeWindow suppresses an identical transition for the same station
// within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *WebhookNotifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(n *WebhookNotifier) {
		n.logger = logger
	}
}

// NewWebhookNotifier constructs the notifier and starts its workers.
func NewWebhookNotifier(channel Channel, template *Template, opts ...Option) (*WebhookNotifier, error) {
	if channel == nil {
		return nil, errors.New("webhook notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &WebhookNotifier{
		channel:  channel,
		template: template,
		clock:    systemClock{},
		location: time.UTC,
		timeout:  5 * time.Second,
		workers:  2,
		logger:   zerolog.Nop(),
		queue:    make(chan delivery, 256),
		sent:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(n)
	}
	for i := 0; i < n.workers; i++ {
		n.wg.Add(1)
		go n.loop()
	}
	return n, nil
}

// Notify implements application.Notifier.
func (n *WebhookNotifier) Notify(_ context.Context, event application.StationEvent) {
	if n == nil {
		return
	}
	data, key, ok := n.buildTemplateData(event)
	if !ok {
		return
	}
	content, err := n.template.Render(data)
	if err != nil {
		n.logger.Error().Err(err).Str("event", event.Type).Msg("render notification failed")
		metrics.IncNotification("webhook", metrics.ResultError)
		return
	}
	if !n.shouldSend(key) {
		metrics.IncNotification("webhook", "deduped")
		return
	}

	d := delivery{id: uuid.NewString(), content: content}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- d:
	default:
		metrics.IncNotification("webhook", metrics.ResultDropped)
		n.logger.Warn().Str("delivery_id", d.id).Str("event", event.Type).Msg("webhook queue full, notification dropped")
	}
}

// Close stops accepting events and waits for queued deliveries until ctx ends.
func (n *WebhookNotifier) Close(ctx context.Context) error {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *WebhookNotifier) loop() {
	defer n.wg.Done()
	for d := range n.queue {
		n.deliver(d)
	}
}

func (n *WebhookNotifier) deliver(d delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	start := time.Now()
	err := n.channel.Send(ctx, d.content)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveWebhook(metrics.ResultError, elapsed)
		n.logger.Warn().Err(err).Str("delivery_id", d.id).Dur("elapsed", elapsed).Msg("webhook delivery failed")
		return
	}
	metrics.ObserveWebhook(metrics.ResultSuccess, elapsed)
	n.logger.Debug().Str("delivery_id", d.id).Dur("elapsed", elapsed).Msg("webhook delivered")
}

func (n *WebhookNotifier) buildTemplateData(event application.StationEvent) (TemplateData, string, bool) {
	switch {
	case event.Transition != nil:
		t := event.Transition
		name := t.Name
		if name == "" {
			name = t.StationID
		}
		code := t.Code
		if code == "" {
			code = t.StationID
		}
		return TemplateData{
			Event:         event.Type,
			Station:       name,
			StationID:     t.StationID,
			Code:          code,
			OldStatus:     t.OldStatus.Label(),
			OldStatusCode: string(t.OldStatus),
			NewStatus:     t.NewStatus.Label(),
			NewStatusCode: string(t.NewStatus),
			Source:        t.Source,
			Time:          n.formatTime(t.Timestamp),
		}, event.Type + "|" + t.StationID + "|" + string(t.OldStatus) + "|" + string(t.NewStatus), true
	case event.Reset != nil:
		return TemplateData{
			Event:         event.Type,
			NewStatus:     stations.StatusNormal.Label(),
			NewStatusCode: string(stations.StatusNormal),
			Source:        event.Reset.Source,
			Time:          n.formatTime(event.Reset.Timestamp),
			ResetCount:    event.Reset.ResetCount,
		}, "", true
	default:
		return TemplateData{}, "", false
	}
}

func (n *WebhookNotifier) formatTime(t time.Time) string {
	if t.IsZero() {
		t = n.clock.Now()
	}
	return t.In(n.location).Format("15:04:05 2/1/2006")
}

// shouldSend reports whether key was not sent within the dedupe window.
// An empty key is never deduplicated; every bulk reset is a distinct action.
func (n *WebhookNotifier) shouldSend(key string) bool {
	if n.dedupeWindow <= 0 || key == "" {
		return true
	}
	hash := hashKey(key)
	now := n.clock.Now().UTC()
	n.sentMu.Lock()
	defer n.sentMu.Unlock()
	if last, ok := n.sent[hash]; ok && now.Sub(last) < n.dedupeWindow {
		return false
	}
	n.sent[hash] = now
	for k, at := range n.sent {
		if now.Sub(at) >= n.dedupeWindow {
			delete(n.sent, k)
		}
	}
	return true
}

func hashKey(key string) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
