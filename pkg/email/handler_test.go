package email_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/queuekit/pkg/email"
	"github.com/dmitrymomot/queuekit/pkg/queue"
)

// MockMailer is a mock implementation of Mailer for testing
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, smtp email.SMTPConfig, opts email.MailOptions) (*email.SendResult, error) {
	args := m.Called(ctx, smtp, opts)
	res, _ := args.Get(0).(*email.SendResult)
	return res, args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validPayload(callID string) email.Payload {
	return email.Payload{
		MailOptions: &email.MailOptions{To: email.AddressList{"a@b.com"}},
		SMTPConfig:  email.SMTPConfig{Host: "smtp.x"},
		CallID:      callID,
	}
}

func newMailRuntime(t *testing.T) (*queue.Runtime, *queue.MemoryStorage) {
	t.Helper()
	store := queue.NewMemoryStorage()
	rt, err := queue.NewRuntime(queue.StoreConnector(store),
		queue.WithRuntimeLogger(discardLogger()),
		queue.WithDefaultWorkerOptions(queue.WithPollInterval(10*time.Millisecond)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })
	return rt, store
}

func waitState(t *testing.T, store *queue.MemoryStorage, job *queue.Job, state queue.JobState) *queue.Job {
	t.Helper()
	var got *queue.Job
	require.Eventually(t, func() bool {
		j, err := store.GetJob(context.Background(), job.Queue, job.ID)
		if err != nil {
			return false
		}
		got = j
		return j.State == state
	}, 3*time.Second, 10*time.Millisecond)
	return got
}

func TestSendEmailHandler_EndToEnd(t *testing.T) {
	t.Parallel()

	t.Run("completes with message id", func(t *testing.T) {
		t.Parallel()
		rt, store := newMailRuntime(t)

		mailer := &MockMailer{}
		mailer.On("Send", mock.Anything, email.SMTPConfig{Host: "smtp.x"}, mock.MatchedBy(func(o email.MailOptions) bool {
			return len(o.To) == 1 && o.To[0] == "a@b.com"
		})).Return(&email.SendResult{MessageID: "123"}, nil).Once()

		require.NoError(t, email.Register(rt, email.NewSendEmailHandler(mailer, email.WithLogger(discardLogger()))))
		_, err := rt.StartWorkers(context.Background())
		require.NoError(t, err)

		job, err := email.Enqueue(context.Background(), rt, validPayload(""))
		require.NoError(t, err)
		assert.Equal(t, email.QueueName, job.Queue)
		assert.Equal(t, email.JobName, job.Name)

		done := waitState(t, store, job, queue.StateCompleted)
		assert.JSONEq(t, `{"messageId":"123"}`, string(done.Result))
		mailer.AssertExpectations(t)
	})

	t.Run("fails after exhausting attempts", func(t *testing.T) {
		t.Parallel()
		rt, store := newMailRuntime(t)

		var calls atomic.Int32
		mailer := email.MailerFunc(func(context.Context, email.SMTPConfig, email.MailOptions) (*email.SendResult, error) {
			calls.Add(1)
			return nil, errors.New("dial tcp: connection refused")
		})

		require.NoError(t, email.Register(rt, email.NewSendEmailHandler(mailer, email.WithLogger(discardLogger()))))
		_, err := rt.StartWorkers(context.Background())
		require.NoError(t, err)

		job, err := email.Enqueue(context.Background(), rt, validPayload(""),
			queue.WithAttempts(3), queue.WithBackoff(queue.FixedBackoff(0)))
		require.NoError(t, err)

		failed := waitState(t, store, job, queue.StateFailed)
		assert.Equal(t, int32(3), calls.Load())
		assert.Equal(t, 3, failed.AttemptsMade)
		assert.Equal(t, "dial tcp: connection refused", failed.FailedReason)
	})

	t.Run("invalid payload fails without retry", func(t *testing.T) {
		t.Parallel()
		rt, store := newMailRuntime(t)

		mailer := &MockMailer{}
		require.NoError(t, email.Register(rt, email.NewSendEmailHandler(mailer, email.WithLogger(discardLogger()))))
		_, err := rt.StartWorkers(context.Background())
		require.NoError(t, err)

		job, err := email.Enqueue(context.Background(), rt, email.Payload{}, queue.WithAttempts(3))
		require.NoError(t, err)

		failed := waitState(t, store, job, queue.StateFailed)
		assert.Equal(t, 1, failed.AttemptsMade)
		assert.Contains(t, failed.FailedReason, "mailOptions")
		mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestSendEmailHandler_Dedup(t *testing.T) {
	t.Parallel()

	t.Run("same call id sends once", func(t *testing.T) {
		t.Parallel()
		mailer := &MockMailer{}
		mailer.On("Send", mock.Anything, mock.Anything, mock.Anything).
			Return(&email.SendResult{MessageID: "m-1"}, nil).Once()

		sent := email.NewMemorySentStore()
		h := email.NewSendEmailHandler(mailer, email.WithSentStore(sent), email.WithLogger(discardLogger()))
		job := &queue.Job{ID: "1", Queue: email.QueueName, Name: email.JobName,
			Payload: []byte(`{"mailOptions":{"to":"a@b.com"},"smtpConfig":{"host":"smtp.x"},"callId":"c-1"}`)}

		first, err := h.Handle(context.Background(), job)
		require.NoError(t, err)
		second, err := h.Handle(context.Background(), job)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		mailer.AssertNumberOfCalls(t, "Send", 1)
	})

	t.Run("falls back to job id", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		mailer := email.MailerFunc(func(context.Context, email.SMTPConfig, email.MailOptions) (*email.SendResult, error) {
			calls.Add(1)
			return &email.SendResult{MessageID: "m"}, nil
		})

		h := email.NewSendEmailHandler(mailer, email.WithSentStore(email.NewMemorySentStore()), email.WithLogger(discardLogger()))
		payload := []byte(`{"mailOptions":{"to":"a@b.com"},"smtpConfig":{"host":"smtp.x"}}`)

		run := func(id string) {
			job := &queue.Job{ID: id, Queue: email.QueueName, Name: email.JobName, Payload: payload}
			_, err := h.Handle(queue.WithJob(context.Background(), job), job)
			require.NoError(t, err)
		}
		run("1")
		run("1")
		run("2")

		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("concurrent deliveries send once", func(t *testing.T) {
		t.Parallel()
		release := make(chan struct{})
		var calls atomic.Int32
		mailer := email.MailerFunc(func(context.Context, email.SMTPConfig, email.MailOptions) (*email.SendResult, error) {
			calls.Add(1)
			<-release
			return &email.SendResult{MessageID: "m"}, nil
		})
		h := email.NewSendEmailHandler(mailer, email.WithSentStore(email.NewMemorySentStore()), email.WithLogger(discardLogger()))
		job := &queue.Job{ID: "1", Queue: email.QueueName, Name: email.JobName,
			Payload: []byte(`{"mailOptions":{"to":"a@b.com"},"smtpConfig":{"host":"smtp.x"},"callId":"dup"}`)}

		firstErr := make(chan error, 1)
		go func() {
			_, err := h.Handle(context.Background(), job)
			firstErr <- err
		}()
		require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

		_, err := h.Handle(context.Background(), job)
		require.ErrorIs(t, err, email.ErrSendInProgress)
		assert.False(t, queue.IsPermanent(err))

		close(release)
		require.NoError(t, <-firstErr)

		res, err := h.Handle(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, &email.SendResult{MessageID: "m"}, res)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("failed send releases the reservation", func(t *testing.T) {
		t.Parallel()
		mailer := &MockMailer{}
		mailer.On("Send", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("connection refused")).Once()
		mailer.On("Send", mock.Anything, mock.Anything, mock.Anything).
			Return(&email.SendResult{MessageID: "m-2"}, nil).Once()

		h := email.NewSendEmailHandler(mailer, email.WithSentStore(email.NewMemorySentStore()), email.WithLogger(discardLogger()))
		job := &queue.Job{ID: "1", Queue: email.QueueName, Name: email.JobName,
			Payload: []byte(`{"mailOptions":{"to":"a@b.com"},"smtpConfig":{"host":"smtp.x"},"callId":"retry"}`)}

		_, err := h.Handle(context.Background(), job)
		require.Error(t, err)
		assert.NotErrorIs(t, err, email.ErrSendInProgress)

		res, err := h.Handle(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, &email.SendResult{MessageID: "m-2"}, res)
		mailer.AssertNumberOfCalls(t, "Send", 2)
	})

	t.Run("records result under call id", func(t *testing.T) {
		t.Parallel()
		sent := email.NewMemorySentStore()
		mailer := email.MailerFunc(func(context.Context, email.SMTPConfig, email.MailOptions) (*email.SendResult, error) {
			return &email.SendResult{MessageID: "m"}, nil
		})
		h := email.NewSendEmailHandler(mailer, email.WithSentStore(sent), email.WithLogger(discardLogger()))
		job := &queue.Job{ID: "1", Queue: email.QueueName, Name: email.JobName,
			Payload: []byte(`{"mailOptions":{"to":"a@b.com"},"smtpConfig":{"host":"smtp.x"},"callId":"c"}`)}

		_, err := h.Handle(context.Background(), job)
		require.NoError(t, err)

		res, err := sent.Lookup(context.Background(), "call:c")
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, "m", res.MessageID)
	})
}

func TestSendEmailHandler_Errors(t *testing.T) {
	t.Parallel()

	job := &queue.Job{Name: email.JobName,
		Payload: []byte(`{"mailOptions":{"to":"a@b.com"},"smtpConfig":{"host":"smtp.x"}}`)}

	t.Run("transport error is retryable", func(t *testing.T) {
		t.Parallel()
		h := email.NewSendEmailHandler(email.MailerFunc(func(context.Context, email.SMTPConfig, email.MailOptions) (*email.SendResult, error) {
			return nil, errors.Join(email.ErrFailedToSendEmail, errors.New("421 try later"))
		}), email.WithLogger(discardLogger()))

		_, err := h.Handle(context.Background(), job)
		require.Error(t, err)
		assert.ErrorIs(t, err, email.ErrFailedToSendEmail)
		assert.False(t, queue.IsPermanent(err))
	})

	t.Run("config error is permanent", func(t *testing.T) {
		t.Parallel()
		h := email.NewSendEmailHandler(email.MailerFunc(func(context.Context, email.SMTPConfig, email.MailOptions) (*email.SendResult, error) {
			return nil, email.ErrInvalidConfig
		}), email.WithLogger(discardLogger()))

		_, err := h.Handle(context.Background(), job)
		assert.True(t, queue.IsPermanent(err))
	})

	t.Run("smtp mailer requires host", func(t *testing.T) {
		t.Parallel()
		h := email.NewSendEmailHandler(email.NewSMTPMailer(email.Config{}), email.WithLogger(discardLogger()))
		noHost := &queue.Job{Name: email.JobName, Payload: []byte(`{"mailOptions":{"to":"a@b.com"}}`)}

		_, err := h.Handle(context.Background(), noHost)
		require.Error(t, err)
		assert.True(t, queue.IsPermanent(err))
		assert.ErrorIs(t, err, email.ErrInvalidPayload)
	})
}
