package notify

import (
	"bytes"
	"context"
	"html/template"
	"io"
	"strconv"

	"github.com/go-faster/errors"
	"gopkg.in/gomail.v2"

	"github.com/xenking/food-checkout/internal/domain/invoice"
	"github.com/xenking/food-checkout/internal/domain/order"
)

// Sender delivers composed messages. *gomail.Dialer implements it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// MailConfig configures the SMTP channel.
type MailConfig struct {
	From string
	// BaseURL is the public origin used in tracking links.
	BaseURL string
}

// NewDialer returns an SMTP dialer.
func NewDialer(host string, port int, username, password string) *gomail.Dialer {
	return gomail.NewDialer(host, port, username, password)
}

var _ order.Publisher = (*Mailer)(nil)

// Mailer emails the customer an order confirmation with the tracking QR code,
// and short updates when the order is ready or on its way.
type Mailer struct {
	cfg    MailConfig
	sender Sender
}

// NewMailer creates a Mailer.
func NewMailer(cfg MailConfig, sender Sender) *Mailer {
	return &Mailer{cfg: cfg, sender: sender}
}

const qrName = "ticket-qr.png"

var (
	confirmationTmpl = template.Must(template.New("confirmation").Parse(`<html><body>
<h2>Thanks {{.Name}}, we have your order</h2>
<p>Order #{{.Number}}, ticket <strong>{{.Ticket}}</strong></p>
<table>
{{range .Lines}}<tr><td>{{.Quantity}} x {{.Name}}</td><td>{{.LineTotal}}</td></tr>
{{end}}</table>
<p>Subtotal {{.Breakdown.Subtotal}}<br>
{{if .HasDiscount}}Discount -{{.Breakdown.Discount}}<br>{{end}}
{{if .HasFee}}Delivery {{.Breakdown.DeliveryFee}}<br>{{end}}
Tax {{.Breakdown.Tax}}<br>
<strong>Total {{.Breakdown.Total}}</strong></p>
<p><a href="{{.TrackingURL}}">Track your order</a></p>
<img src="cid:` + qrName + `" alt="{{.Ticket}}">
</body></html>`))

	statusTmpl = template.Must(template.New("status").Parse(`<html><body>
<p>Hi {{.Name}}, order #{{.Number}} ({{.Ticket}}) {{.Headline}}.</p>
<p><a href="{{.TrackingURL}}">Track your order</a></p>
</body></html>`))
)

type mailData struct {
	*order.Order
	Name        string
	HasDiscount bool
	HasFee      bool
	TrackingURL string
	Headline    string
}

func (m *Mailer) Publish(_ context.Context, e order.Event) error {
	o := e.Order
	if o.Contact.Email == "" {
		return nil
	}
	data := mailData{
		Order:       o,
		Name:        o.Contact.Name,
		HasDiscount: o.Breakdown.Discount > 0,
		HasFee:      o.Breakdown.DeliveryFee > 0,
		TrackingURL: invoice.TrackingURL(m.cfg.BaseURL, o.Ticket, o.TrackingToken),
	}

	var msg *gomail.Message
	switch e.Type {
	case order.EventCreated:
		qr, err := invoice.QRCode(data.TrackingURL, 256)
		if err != nil {
			return errors.Wrap(err, "render qr")
		}
		msg, err = m.compose(o, "Order #"+strconv.FormatInt(o.Number, 10)+" confirmed", confirmationTmpl, data)
		if err != nil {
			return err
		}
		msg.Embed(qrName, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(qr)
			return err
		}))
	case order.EventStatusChanged:
		data.Headline = headline(o.Status)
		if data.Headline == "" {
			return nil
		}
		var err error
		msg, err = m.compose(o, "Order #"+strconv.FormatInt(o.Number, 10)+" update", statusTmpl, data)
		if err != nil {
			return err
		}
	default:
		return nil
	}

	if err := m.sender.DialAndSend(msg); err != nil {
		return errors.Wrapf(err, "send %s email for order %s", e.Type, o.ID)
	}
	return nil
}

func (m *Mailer) compose(o *order.Order, subject string, tmpl *template.Template, data mailData) (*gomail.Message, error) {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return nil, errors.Wrap(err, "render email")
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetAddressHeader("To", o.Contact.Email, o.Contact.Name)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body.String())
	return msg, nil
}

// headline describes statuses the customer is emailed about.
func headline(s order.Status) string {
	switch s {
	case order.StatusReady:
		return "is ready for collection"
	case order.StatusOutForDelivery:
		return "is on its way"
	case order.StatusCancelled:
		return "has been cancelled"
	}
	return ""
}
