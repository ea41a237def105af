package mail

import (
	"bytes"
	"context"
	"errors"
	htmltemplate "html/template"
	"net/url"
	"text/template"

	"github.com/odyssey-erp/accountkit/internal/accounts"
)

const (
	activationSubject = "Confirm your email address"
	reminderSubject   = "Reminder: confirm your email address"
)

type activationData struct {
	Username string
	Email    string
	Link     string
	Reminder bool
}

var activationText = template.Must(template.New("activation.txt").Parse(`Hello,
{{if .Reminder}}
You signed up with {{.Email}} but have not confirmed the address yet.
{{else}}
Please confirm that {{.Email}} belongs to you.
{{end}}
Open the link below to activate your account:

{{.Link}}

If you did not request this, you can ignore this email.
`))

var activationHTML = htmltemplate.Must(htmltemplate.New("activation.html").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    {{if .Reminder}}<p>You signed up with <strong>{{.Email}}</strong> but have not confirmed the address yet.</p>
    {{else}}<p>Please confirm that <strong>{{.Email}}</strong> belongs to you.</p>{{end}}
    <p><a href="{{.Link}}">Activate your account</a></p>
    <p style="font-size: 12px; color: #6b7280;">If you did not request this, you can ignore this email.</p>
  </div>
</body>
</html>`))

// ActivationMailer turns activations into queued emails. It implements
// accounts.ActivationNotifier.
type ActivationMailer struct {
	dispatcher Dispatcher
}

// NewActivationMailer constructs an ActivationMailer.
func NewActivationMailer(dispatcher Dispatcher) *ActivationMailer {
	return &ActivationMailer{dispatcher: dispatcher}
}

// SendActivation implements accounts.ActivationNotifier.
func (m *ActivationMailer) SendActivation(ctx context.Context, activation accounts.Activation) error {
	msg, err := BuildActivation(activation)
	if err != nil {
		return err
	}
	return m.dispatcher.Dispatch(ctx, msg)
}

// ActivationLink is the confirmation URL mailed for key.
func ActivationLink(domain, key string) string {
	u := url.URL{Scheme: "https", Host: domain, Path: "/auth/confirm/" + key}
	return u.String()
}

// BuildActivation renders the activation or reminder email.
func BuildActivation(activation accounts.Activation) (Message, error) {
	if activation.Association == nil {
		return Message{}, errors.New("mail: activation without association")
	}
	if activation.Domain == "" {
		return Message{}, errors.New("mail: activation without domain")
	}
	data := activationData{
		Email:    activation.Association.Email,
		Link:     ActivationLink(activation.Domain, activation.Association.ActivationKey),
		Reminder: activation.Reminder,
	}
	if activation.Account != nil {
		data.Username = activation.Account.Username
	}

	var text, html bytes.Buffer
	if err := activationText.Execute(&text, data); err != nil {
		return Message{}, err
	}
	if err := activationHTML.Execute(&html, data); err != nil {
		return Message{}, err
	}

	subject := activationSubject
	if activation.Reminder {
		subject = reminderSubject
	}
	return Message{
		To:      activation.Association.Email,
		Subject: subject,
		Body:    text.String(),
		HTML:    html.String(),
	}, nil
}

var _ accounts.ActivationNotifier = (*ActivationMailer)(nil)
