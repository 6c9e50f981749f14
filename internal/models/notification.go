package models

// Channels
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Delivery statuses reported by the notification worker.
const (
	NotificationStatusSent     = "sent"
	NotificationStatusFailed   = "failed"
	NotificationStatusDisabled = "disabled"
)

// EmailMessage is one outgoing email with a text body and an optional HTML
// alternative.
type EmailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}
