package email

// SendEmailResponse represents the response from sending an email
type SendEmailResponse struct {
	MessageID string
	Success   bool
	Error     string
}

// Rendered is a template rendered for one recipient
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}
