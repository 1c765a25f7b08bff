package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/aegis-risk/internal/contracts"
	"github.com/wonny/aegis-risk/internal/metrics"
	"github.com/wonny/aegis-risk/pkg/logger"
	"github.com/wonny/aegis-risk/pkg/redis"
)

// RecipientLimiter caps deliveries per recipient across processes
type RecipientLimiter interface {
	Allow(ctx context.Context, recipient string) (bool, error)
}

// RedisRecipientLimiter applies an hourly sliding window per recipient through Redis
type RedisRecipientLimiter struct {
	limiter *redis.RateLimiter
	perHour int
}

// NewRedisRecipientLimiter creates a limiter allowing perHour notifications per recipient
func NewRedisRecipientLimiter(limiter *redis.RateLimiter, perHour int) *RedisRecipientLimiter {
	return &RedisRecipientLimiter{limiter: limiter, perHour: perHour}
}

// Allow reports whether recipient still has budget in the current window
func (l *RedisRecipientLimiter) Allow(ctx context.Context, recipient string) (bool, error) {
	allowed, _, err := l.limiter.Allow(ctx, redis.RecipientLimit(recipient, l.perHour))
	return allowed, err
}

// DispatcherConfig tunes the dispatcher
type DispatcherConfig struct {
	RatePerSec  float64       // <= 0 = unlimited
	QueueSize   int           // <= 0 = 256
	SendTimeout time.Duration // per sink, <= 0 = 10s
}

// Dispatcher fans notifications out to every sink from a background worker.
// Enqueue never blocks; delivery failures are logged and never returned to the caller.
type Dispatcher struct {
	sinks      []contracts.Notifier
	recipients RecipientLimiter
	limiter    *rate.Limiter
	timeout    time.Duration
	log        *logger.Logger

	mu     sync.RWMutex
	queue  chan contracts.Notification
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher; recipients may be nil
func NewDispatcher(cfg DispatcherConfig, recipients RecipientLimiter, log *logger.Logger, sinks ...contracts.Notifier) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
		burst = int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		sinks:      sinks,
		recipients: recipients,
		limiter:    rate.NewLimiter(limit, burst),
		timeout:    cfg.SendTimeout,
		log:        log.Component("notify"),
		queue:      make(chan contracts.Notification, cfg.QueueSize),
	}
}

// Sinks returns the configured sink names
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// Enqueue queues n for delivery. It returns false when the queue is full or stopped.
func (d *Dispatcher) Enqueue(n contracts.Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- n:
		return true
	default:
		metrics.RecordNotification("queue", "dropped")
		d.log.WithField("recipient", n.Recipient).Warn("Notification queue full, dropping")
		return false
	}
}

// Start runs the delivery worker until ctx is cancelled or Stop is called
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-d.queue:
				if !ok {
					return
				}
				d.deliver(ctx, n)
			}
		}
	}()
}

// Stop closes the queue and waits for queued notifications to drain
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Deliver sends n synchronously to every sink; used by the worker and by one-shot CLI runs
func (d *Dispatcher) Deliver(ctx context.Context, n contracts.Notification) {
	d.deliver(ctx, n)
}

func (d *Dispatcher) deliver(ctx context.Context, n contracts.Notification) {
	if err := d.limiter.Wait(ctx); err != nil {
		return
	}

	if d.recipients != nil {
		allowed, err := d.recipients.Allow(ctx, n.Recipient)
		if err != nil {
			// limiter outage: deliver rather than lose the alert
			d.log.WithError(err).Warn("Recipient limiter failed")
		} else if !allowed {
			metrics.RecordNotification("recipient", "throttled")
			d.log.WithField("recipient", n.Recipient).Info("Recipient over hourly limit, skipping")
			return
		}
	}

	for _, sink := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := sink.Send(sctx, n)
		cancel()
		if err != nil {
			metrics.RecordNotification(sink.Name(), "error")
			d.log.WithFields(map[string]interface{}{
				"sink":      sink.Name(),
				"recipient": n.Recipient,
			}).WithError(err).Warn("Notification delivery failed")
			continue
		}
		metrics.RecordNotification(sink.Name(), "success")
	}
}
