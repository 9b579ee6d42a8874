package worker

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/creative-contact/backend/internal/checkin"
	"github.com/creative-contact/backend/internal/models"
	"github.com/creative-contact/backend/pkg/queue"
)

var subjects = map[string]string{
	models.EmailTypeRegistrationConfirmation: "Please confirm your registration",
	models.EmailTypeCheckinReceipt:           "You are checked in",
}

var bodies = template.Must(template.New("email").Parse(`
{{- define "registration_confirmation" -}}
Hello {{.Name}},

thank you for registering. Please confirm your place by opening this link:

{{.ConfirmURL}}

Show this code at the entrance: {{.TicketCode}}
{{- end}}
{{- define "checkin_receipt" -}}
Hello {{.Name}},

you have been checked in. Enjoy the event!
{{- end}}`))

// Renderer turns email job payloads into messages.
type Renderer struct {
	publicURL string
}

// NewRenderer creates a renderer; publicURL is the base of links in emails.
func NewRenderer(publicURL string) *Renderer {
	return &Renderer{publicURL: strings.TrimRight(publicURL, "/")}
}

// Render builds the message for an email job.
func (r *Renderer) Render(p queue.EmailPayload) (Message, error) {
	subject, ok := subjects[p.EmailType]
	if !ok {
		return Message{}, fmt.Errorf("unknown email type %q", p.EmailType)
	}
	if p.RecipientEmail == "" {
		return Message{}, fmt.Errorf("missing recipient")
	}
	if p.EmailType == models.EmailTypeRegistrationConfirmation && p.Signature == "" {
		return Message{}, fmt.Errorf("confirmation email without signature")
	}

	data := struct {
		Name       string
		ConfirmURL string
		TicketCode string
	}{
		Name:       p.RecipientName,
		ConfirmURL: r.publicURL + "/registrations/confirm/" + p.Signature,
		TicketCode: checkin.QRPayload(p.RegistrationID),
	}
	var body bytes.Buffer
	if err := bodies.ExecuteTemplate(&body, p.EmailType, data); err != nil {
		return Message{}, err
	}
	return Message{To: p.RecipientEmail, Subject: subject, Body: body.String()}, nil
}
