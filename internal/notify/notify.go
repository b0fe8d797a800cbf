// Package notify emails the finished report through SendGrid.
package notify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"revstats/internal/config"
	"revstats/internal/logging"
	"revstats/internal/template"
	"revstats/internal/util"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendPath is the SendGrid v3 mail endpoint.
const SendPath = "/v3/mail/send"

// ErrMissingSettings is returned when the API key or an address is absent.
var ErrMissingSettings = errors.New("missing email settings")

// Message is one plain-text email with a single CSV attachment.
type Message struct {
	FromEmail      string
	FromName       string
	ToEmail        string
	Subject        string
	Body           string
	AttachmentName string
	Attachment     []byte
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SendGridSender sends through the SendGrid v3 API.
type SendGridSender struct {
	apiKey string
	host   string
	client *rest.Client
}

// NewSendGridSender creates a sender. An empty host means the public
// SendGrid API; httpClient may be nil.
func NewSendGridSender(apiKey, host string, httpClient *http.Client) *SendGridSender {
	if host == "" {
		host = config.DefaultSendGridHost
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SendGridSender{
		apiKey: apiKey,
		host:   strings.TrimRight(host, "/"),
		client: &rest.Client{HTTPClient: httpClient},
	}
}

// Send validates msg and posts it. Any non-2xx status is an error.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	var missing []string
	if s.apiKey == "" {
		missing = append(missing, config.EnvSendGridAPIKey)
	}
	if msg.FromEmail == "" {
		missing = append(missing, config.EnvFromEmail)
	}
	if msg.ToEmail == "" {
		missing = append(missing, config.EnvToEmail)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSettings, strings.Join(missing, ", "))
	}

	request := sendgrid.GetRequest(s.apiKey, SendPath, s.host)
	request.Method = rest.Post
	request.Body = mail.GetRequestBody(BuildMail(msg))

	logging.Logf(logging.Info, "Sending report %s to %s", msg.AttachmentName, msg.ToEmail)
	resp, err := s.client.SendWithContext(ctx, request)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	logging.Logf(logging.Debug, "SendGrid responded %d: %s", resp.StatusCode, util.Snippet([]byte(resp.Body)))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to send email: SendGrid returned status %d: %s", resp.StatusCode, util.Snippet([]byte(resp.Body)))
	}
	return nil
}

// BuildMail converts msg into a SendGrid v3 mail with a base64 CSV attachment.
func BuildMail(msg Message) *mail.SGMailV3 {
	from := mail.NewEmail(msg.FromName, msg.FromEmail)
	to := mail.NewEmail("", msg.ToEmail)
	content := mail.NewContent("text/plain", msg.Body)
	m := mail.NewV3MailInit(from, msg.Subject, to, content)

	attachment := mail.NewAttachment().
		SetContent(base64.StdEncoding.EncodeToString(msg.Attachment)).
		SetType("text/csv").
		SetFilename(msg.AttachmentName).
		SetDisposition("attachment").
		SetContentID(msg.AttachmentName)
	m.AddAttachment(attachment)
	return m
}

// RunInfo is what the subject and body templates can reference.
type RunInfo struct {
	FileName string
	DateFrom string
	DateTo   string
	Rows     int
	Boosts   int
	Tag      config.Tag
}

// Vars returns the template variables for info.
func (info RunInfo) Vars() map[string]string {
	return map[string]string{
		"FileName": info.FileName,
		"DateFrom": info.DateFrom,
		"DateTo":   info.DateTo,
		"Rows":     strconv.Itoa(info.Rows),
		"Boosts":   strconv.Itoa(info.Boosts),
		"TagName":  info.Tag.Name,
		"TagValue": info.Tag.Value,
	}
}

// Notifier renders and sends the report email.
type Notifier struct {
	sender Sender
	email  config.EmailConfig
	creds  config.Credentials
}

// NewNotifier creates a Notifier.
func NewNotifier(sender Sender, email config.EmailConfig, creds config.Credentials) *Notifier {
	return &Notifier{sender: sender, email: email, creds: creds}
}

// Notify reads the closed report at path and emails it.
func (n *Notifier) Notify(ctx context.Context, path string, info RunInfo) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read report '%s': %w", path, err)
	}

	subjectTmpl, bodyTmpl := n.email.Subject, n.email.Body
	if subjectTmpl == "" {
		subjectTmpl = config.DefaultSubject
	}
	if bodyTmpl == "" {
		bodyTmpl = config.DefaultBody
	}
	if info.FileName == "" {
		info.FileName = filepath.Base(path)
	}
	vars := info.Vars()
	subject, err := template.Render("email.subject", subjectTmpl, vars)
	if err != nil {
		return err
	}
	body, err := template.Render("email.body", bodyTmpl, vars)
	if err != nil {
		return err
	}

	return n.sender.Send(ctx, Message{
		FromEmail:      n.creds.FromEmail,
		FromName:       n.creds.FromName,
		ToEmail:        n.creds.ToEmail,
		Subject:        subject,
		Body:           body,
		AttachmentName: filepath.Base(path),
		Attachment:     data,
	})
}
