// Package alerts delivers backend health notifications to the configured
// destinations, email, telegram or webhooks. Delivery is best effort, a
// failed destination is logged and never interrupts polling.
package alerts

import (
	"context"
	"fmt"
	"os"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/notify"
)

// Params configures the sender. Destinations without a matching transport
// are reported once at construction and skipped.
type Params struct {
	Destinations  []string      // mailto:..., telegram:... or webhook URLs
	BackendURL    string        // included in messages for operators with multiple panels
	TelegramToken string        // enables telegram: destinations
	SMTPHost      string        // enables mailto: destinations
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPTLS       bool
	Timeout       time.Duration // per destination, default 10s
}

// Sender fans one message out to all destinations.
type Sender struct {
	notifiers    []notify.Notifier
	destinations []string
	backendURL   string
	host         string
}

// New builds a Sender with transports for the schemas the params enable.
// A Sender with no destinations is valid and sends nothing.
func New(p Params) *Sender {
	if p.Timeout <= 0 {
		p.Timeout = 10 * time.Second
	}

	var notifiers []notify.Notifier
	notifiers = append(notifiers, notify.NewWebhook(notify.WebhookParams{Timeout: p.Timeout}))
	if p.TelegramToken != "" {
		tg, _ := notify.NewTelegram(notify.TelegramParams{Token: p.TelegramToken, Timeout: p.Timeout})
		notifiers = append(notifiers, tg)
	}
	if p.SMTPHost != "" {
		notifiers = append(notifiers, notify.NewEmail(notify.SMTPParams{
			Host:     p.SMTPHost,
			Port:     p.SMTPPort,
			TLS:      p.SMTPTLS,
			Username: p.SMTPUsername,
			Password: p.SMTPPassword,
			TimeOut:  p.Timeout,
		}))
	}

	host, _ := os.Hostname()
	res := &Sender{notifiers: notifiers, backendURL: p.BackendURL, host: host}

	for _, dest := range p.Destinations {
		if !res.supported(dest) {
			log.Printf("[WARN] no transport for destination %s, skipped", dest)
			continue
		}
		res.destinations = append(res.destinations, dest)
	}
	return res
}

// BackendDown reports the backend unreachable after the given number of
// consecutive poll failures.
func (s *Sender) BackendDown(ctx context.Context, failures int, lastErr error) {
	msg := fmt.Sprintf("syncview on %s: backend %s unreachable, %d polls failed, last error: %v",
		s.host, s.backendURL, failures, lastErr)
	s.send(ctx, msg)
}

// BackendRecovered reports the backend reachable again.
func (s *Sender) BackendRecovered(ctx context.Context, downFor time.Duration) {
	msg := fmt.Sprintf("syncview on %s: backend %s recovered after %s",
		s.host, s.backendURL, downFor.Round(time.Second))
	s.send(ctx, msg)
}

func (s *Sender) send(ctx context.Context, text string) {
	for _, dest := range s.destinations {
		if err := notify.Send(ctx, s.notifiers, dest, text); err != nil {
			log.Printf("[WARN] failed to notify %s: %v", dest, err)
			continue
		}
		log.Printf("[DEBUG] notified %s", dest)
	}
}

func (s *Sender) supported(dest string) bool {
	for _, n := range s.notifiers {
		schema := n.Schema()
		if len(dest) > len(schema) && dest[:len(schema)] == schema {
			return true
		}
		// webhook notifier schema is http, it also serves https destinations
		if schema == "http" && len(dest) >= 8 && dest[:8] == "https://" {
			return true
		}
	}
	return false
}
