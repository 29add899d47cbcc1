package output

import (
	"bytes"
	"fmt"
	"log"
	"net/smtp"
	"os"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/digestbot/digestbot/internal/config"
	"github.com/digestbot/digestbot/internal/item"
)

var md = goldmark.New()

// emailOutput sends the digest via SMTP. Transport settings come from
// the environment (SMTP_HOST, SMTP_PORT, SMTP_USER, SMTP_PASSWORD,
// EMAIL_FROM) so the config file never carries credentials.
type emailOutput struct {
	enabled         bool
	format          string // "plain" or "html"
	to              string
	subjectTemplate string
	send            func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

func newEmail(cfg config.Output) (Output, error) {
	enabled := cfg.Enabled
	// DIGEST_EMAIL_ENABLED overrides the config, useful in CI.
	switch strings.ToLower(os.Getenv("DIGEST_EMAIL_ENABLED")) {
	case "true", "1", "yes":
		enabled = true
	case "false", "0", "no":
		enabled = false
	}

	format := cfg.Format
	if format == "" {
		format = "plain"
	}

	subject := cfg.Subject
	if subject == "" {
		subject = "[{name}] Digest ({time_window}) - {date}"
	}

	e := &emailOutput{
		enabled:         enabled,
		format:          format,
		to:              cfg.To,
		subjectTemplate: subject,
		send:            smtp.SendMail,
	}

	if enabled {
		if err := e.validate(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *emailOutput) validate() error {
	var missing []string
	if e.to == "" {
		missing = append(missing, "to (in config)")
	}
	for _, name := range []string{"SMTP_HOST", "SMTP_USER", "SMTP_PASSWORD", "EMAIL_FROM"} {
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: email output enabled but missing: %s", config.ErrInvalid, strings.Join(missing, ", "))
	}
	return nil
}

func (e *emailOutput) Type() string { return "email" }

func (e *emailOutput) Write(digest string, meta item.Metadata) (string, error) {
	if !e.enabled {
		log.Println("Email output is disabled")
		return "", nil
	}

	host := os.Getenv("SMTP_HOST")
	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "587"
	}
	user := os.Getenv("SMTP_USER")
	password := os.Getenv("SMTP_PASSWORD")
	from := os.Getenv("EMAIL_FROM")

	subject := expandTemplate(e.subjectTemplate, meta)
	msg, err := e.buildMessage(from, subject, digest)
	if err != nil {
		return "", err
	}

	auth := smtp.PlainAuth("", user, password, host)
	if err := e.send(host+":"+port, auth, from, []string{e.to}, msg); err != nil {
		return "", fmt.Errorf("sending email: %w", err)
	}

	log.Printf("Digest emailed to %s", e.to)
	return e.to, nil
}

func (e *emailOutput) buildMessage(from, subject, digest string) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", e.to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")

	if e.format == "html" {
		body, err := renderHTML(digest)
		if err != nil {
			return nil, err
		}
		buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		buf.WriteString(body)
	} else {
		buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		buf.WriteString(digest)
	}

	return buf.Bytes(), nil
}

// renderHTML converts the markdown digest into an HTML email body.
func renderHTML(digest string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(digest), &buf); err != nil {
		return "", fmt.Errorf("rendering digest HTML: %w", err)
	}
	return buf.String(), nil
}
