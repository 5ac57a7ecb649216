// Package email sends transactional email as queue jobs.
//
// A send-email job carries everything needed to deliver one message:
//
//	{
//	  "mailOptions": {"from": "...", "to": "a@b.com", "cc": [...], "subject": "...", "html": "..."},
//	  "smtpConfig":  {"host": "smtp.example.com", "port": 587, "secure": false, "auth": {"user": "...", "pass": "..."}},
//	  "callId":      "stable-id-of-the-logical-send"
//	}
//
// The address fields accept a single string, a comma separated string or a
// list.
//
// # Architecture
//
// NewSendEmailHandler returns a queue.Handler that validates the payload,
// hands the message to a Mailer and returns a SendResult as the job result.
// Three mailers are provided:
//   - SMTPMailer relays through the server named in each job (go-mail)
//   - PostmarkMailer delivers through Postmark's API
//   - DevMailer writes messages to disk for local development
//
// NewMailer selects one from Config.Transport.
//
// Jobs are delivered at least once. With a SentStore the handler reserves the
// message's callId (or job ID) before sending and records the result under it
// afterwards. A repeat of a delivered message returns the recorded result; a
// repeat that races a delivery still in progress fails with
// ErrSendInProgress and is retried by the queue. A failed send releases the
// reservation.
//
// # Usage
//
//	mailer, err := email.NewMailer(cfg.Email)
//	if err != nil {
//		return err
//	}
//	h := email.NewSendEmailHandler(mailer,
//		email.WithSentStore(email.NewRedisSentStore(redis.NewStorage(client, "mail:sent:"))),
//	)
//	if err := email.Register(rt, h); err != nil {
//		return err
//	}
//
//	job, err := email.Enqueue(ctx, rt, email.Payload{
//		MailOptions: &email.MailOptions{To: email.AddressList{"user@example.com"}, Subject: "Hi", Text: "Hello"},
//		SMTPConfig:  email.SMTPConfig{Host: "smtp.example.com", Port: 587},
//		CallID:      requestID,
//	})
//
// # Error Handling
//
// Invalid payloads (ErrInvalidPayload) and configuration problems
// (ErrInvalidConfig) fail the job permanently. Delivery errors wrap
// ErrFailedToSendEmail and are returned to the queue so its retry policy
// applies.
package email
