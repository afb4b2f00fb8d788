package mail

// Message is a single outbound email.
type Message struct {
	ToName    string
	ToAddress string
	Subject   string
	Body      string
}

// Mailer delivers messages to an external transport. Implementations are
// fire-and-forget from the caller's point of view; a returned error is
// informational and must never abort the calling workflow.
type Mailer interface {
	Send(msg Message) error
}
