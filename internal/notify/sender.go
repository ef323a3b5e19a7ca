// Package notify provides the outbound email boundary. Everything the core
// sends through it is best effort: callers log failures and move on, a
// notification must never roll back a committed sale or approval.
package notify

import "context"

// Attachment is a file attached to an outgoing message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Sender delivers a message to a single recipient.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string, attachments ...Attachment) error
}
