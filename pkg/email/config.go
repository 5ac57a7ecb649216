package email

import "time"

// Transport names accepted by Config.Transport.
const (
	TransportSMTP     = "smtp"
	TransportPostmark = "postmark"
	TransportDev      = "dev"
)

// Config holds email delivery configuration.
// Postmark tokens are only required by the postmark transport, DevDir only
// by the dev transport. SMTP connection details travel with each job.
type Config struct {
	Transport   string        `env:"EMAIL_TRANSPORT" envDefault:"smtp"`
	DefaultFrom string        `env:"EMAIL_DEFAULT_FROM"`
	SMTPTimeout time.Duration `env:"EMAIL_SMTP_TIMEOUT" envDefault:"30s"`
	DedupTTL    time.Duration `env:"EMAIL_DEDUP_TTL" envDefault:"24h"`
	DevDir      string        `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`

	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
}
