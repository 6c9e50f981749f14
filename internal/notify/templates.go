package notify

import (
	"fmt"
	"html"
	"strings"

	"vanu-marketplace/internal/models"
)

// render replaces {{key}} placeholders with values from data and drops
// placeholders that have no value.
func render(tmpl string, data map[string]string) string {
	result := tmpl
	for k, v := range data {
		result = strings.ReplaceAll(result, "{{"+k+"}}", v)
	}
	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return result
}

func escapeAll(data map[string]string) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = html.EscapeString(v)
	}
	return out
}

const (
	applicationSubject = "Your Vanu application has been received"
	applicationText    = "Hi {{name}},\n\nThank you for applying. We have received your application (reference {{applicationId}}) and our team will review it shortly.\n\n{{signature}}"
	applicationHTML    = "<p>Hi {{name}},</p><p>Thank you for applying. We have received your application (reference <strong>{{applicationId}}</strong>) and our team will review it shortly.</p><p>{{signature}}</p>"
	applicationSMS     = "Vanu: your application {{applicationId}} has been received. We will contact you after review."
)

// ApplicationReceivedEmail is sent to an applicant once their submission is recorded.
func ApplicationReceivedEmail(to, name, applicationID, signature string) models.EmailMessage {
	data := map[string]string{"name": name, "applicationId": applicationID, "signature": signature}
	return models.EmailMessage{
		To:      to,
		Subject: applicationSubject,
		Text:    render(applicationText, data),
		HTML:    render(applicationHTML, escapeAll(data)),
	}
}

func ApplicationReceivedSMS(applicationID string) string {
	return render(applicationSMS, map[string]string{"applicationId": applicationID})
}

// OrderStatusEmail tells a customer their order moved to status.
func OrderStatusEmail(order models.Order, status string) models.EmailMessage {
	data := map[string]string{
		"name":    order.CustomerName,
		"orderId": order.ShortID(),
		"status":  status,
	}
	return models.EmailMessage{
		To:      order.Email,
		Subject: fmt.Sprintf("Your Vanu Organic Order is %s", status),
		Text: render("Hi {{name}},\n\nThe status of your order #{{orderId}} has been updated to: {{status}}.\n\n"+
			"Thank you for shopping with us!\n The Vanu Organic Team", data),
		HTML: render("<p>Hi {{name}},</p><p>The status of your order <strong>#{{orderId}}</strong> has been updated to: "+
			"<strong>{{status}}</strong>.</p><p>Thank you for shopping with us!</p><p>The Vanu Organic Team</p>", escapeAll(data)),
	}
}
