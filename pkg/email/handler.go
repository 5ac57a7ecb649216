package email

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/queuekit/pkg/logger"
	"github.com/dmitrymomot/queuekit/pkg/queue"
)

const (
	// JobName is the job name the email handler is registered under.
	JobName = "send-email"
	// QueueName is the queue email jobs are enqueued on.
	QueueName = "mail-queue"
	// DefaultDedupTTL is how long a delivered message is remembered.
	DefaultDedupTTL = 24 * time.Hour
	// DefaultReservationTTL bounds how long a delivery holds its dedup key
	// before the result is recorded. A crashed sender blocks retries of the
	// same message for at most this long.
	DefaultReservationTTL = 10 * time.Minute
)

// HandlerOption configures the send-email handler.
type HandlerOption func(*sendHandler)

// WithSentStore enables dedup of redelivered jobs.
func WithSentStore(s SentStore) HandlerOption {
	return func(h *sendHandler) {
		h.sent = s
	}
}

// WithDedupTTL sets how long delivered messages are remembered.
func WithDedupTTL(ttl time.Duration) HandlerOption {
	return func(h *sendHandler) {
		if ttl > 0 {
			h.ttl = ttl
		}
	}
}

// WithReservationTTL sets how long a delivery in progress holds its dedup key.
func WithReservationTTL(ttl time.Duration) HandlerOption {
	return func(h *sendHandler) {
		if ttl > 0 {
			h.hold = ttl
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *sendHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

type sendHandler struct {
	mailer Mailer
	sent   SentStore
	ttl    time.Duration
	hold   time.Duration
	logger *slog.Logger
}

// NewSendEmailHandler returns the queue handler for send-email jobs.
//
// The payload is validated before anything is sent and a malformed payload
// fails the job permanently. Transport errors are returned so the queue
// retries. With a SentStore the handler reserves the dedup key (callId, or
// job ID when callId is empty) before sending: a message already delivered
// is skipped and its recorded result returned, and a delivery running
// elsewhere fails this attempt with ErrSendInProgress so the queue retries.
func NewSendEmailHandler(m Mailer, opts ...HandlerOption) queue.Handler {
	h := &sendHandler{
		mailer: m,
		ttl:    DefaultDedupTTL,
		hold:   DefaultReservationTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(logger.Component("email"))

	return queue.NewJobHandler(h.send)
}

func (h *sendHandler) send(ctx context.Context, p Payload) (*SendResult, error) {
	if err := p.Validate(requiresSMTP(h.mailer)); err != nil {
		return nil, queue.Permanent(err)
	}

	log := h.logger.With(logger.CallID(p.CallID))
	key := dedupKey(ctx, p)

	reserved := h.sent != nil && key != ""
	if reserved {
		res, err := h.sent.Reserve(ctx, key, h.hold)
		if err != nil {
			return nil, err
		}
		if res != nil {
			log.InfoContext(ctx, "email already sent, skipping", logger.MessageID(res.MessageID))
			return res, nil
		}
	}

	res, err := h.mailer.Send(ctx, p.SMTPConfig, *p.MailOptions)
	if err != nil {
		if reserved {
			// The job context may be past its deadline already.
			if rerr := h.sent.Release(context.WithoutCancel(ctx), key); rerr != nil {
				log.WarnContext(ctx, "failed to release email reservation", logger.Error(rerr))
			}
		}
		if errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrInvalidPayload) {
			return nil, queue.Permanent(err)
		}
		return nil, err
	}
	if res == nil {
		res = &SendResult{}
	}

	if reserved {
		// The message is out; failing here would only send it again.
		if err := h.sent.Record(context.WithoutCancel(ctx), key, res, h.ttl); err != nil {
			log.WarnContext(ctx, "failed to record sent email", logger.Error(err))
		}
	}

	log.InfoContext(ctx, "email sent",
		logger.MessageID(res.MessageID),
		slog.Int("recipients", len(p.MailOptions.Recipients())))

	return res, nil
}

func dedupKey(ctx context.Context, p Payload) string {
	if p.CallID != "" {
		return "call:" + p.CallID
	}
	if job, ok := queue.JobFromContext(ctx); ok && job.ID != "" {
		return "job:" + job.Queue + ":" + job.ID
	}
	return ""
}

// Register binds the send-email handler to the mail queue of rt.
func Register(rt *queue.Runtime, h queue.Handler, opts ...queue.WorkerOption) error {
	mux := queue.NewMux()
	if err := mux.Register(JobName, h); err != nil {
		return err
	}
	return rt.Handle(QueueName, mux, opts...)
}

// Enqueue adds a send-email job to the mail queue.
func Enqueue(ctx context.Context, rt *queue.Runtime, p Payload, opts ...queue.JobOption) (*queue.Job, error) {
	return rt.AddJob(ctx, QueueName, JobName, p, opts...)
}
