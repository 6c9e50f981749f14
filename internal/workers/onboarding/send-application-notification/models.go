package sendapplicationnotification

// Input is the variable set published with the application-received message.
type Input struct {
	ApplicationID string `json:"applicationId"`
	Collection    string `json:"collection"`
	Variant       string `json:"variant,omitempty"`
	Email         string `json:"email,omitempty"`
	Mobile        string `json:"mobile,omitempty"`
	Name          string `json:"name,omitempty"`
	UserID        string `json:"userId,omitempty"`
}

type Output struct {
	NotificationID string `json:"notificationId"`
	Status         string `json:"status"` // sent, failed, disabled
	SentAt         string `json:"sentAt"` // RFC 3339
}
