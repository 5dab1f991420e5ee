// Package notify sends lifecycle emails to registrants.
package notify

import (
	"context"
	"fmt"

	"dataregistry/pkg/domain"
)

// Message is one outbound email.
type Message struct {
	ToEmail   string
	ToName    string
	Subject   string
	PlainBody string
	HTMLBody  string
}

// Sender delivers a message. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Verification is the email sent right after a registration is
// submitted, carrying the token the registrant must confirm.
func Verification(toEmail, toName, token, baseURL string) Message {
	link := fmt.Sprintf("%s/register/verify?token=%s", baseURL, token)
	return Message{
		ToEmail: toEmail,
		ToName:  toName,
		Subject: "Verify your email address",
		PlainBody: fmt.Sprintf(
			"Hello %s,\n\n"+
				"Thank you for registering. Please verify your email address by visiting:\n\n"+
				"%s\n\n"+
				"Your registration will be reviewed once your email is verified.\n",
			toName, link),
		HTMLBody: fmt.Sprintf(
			"<p>Hello %s,</p>"+
				"<p>Thank you for registering. Please verify your email address by clicking the link below:</p>"+
				"<p><a href=%q>Verify email</a></p>"+
				"<p>Your registration will be reviewed once your email is verified.</p>",
			toName, link),
	}
}

// Approved is sent when an admin approves the registration. It is the
// first time the registrant sees their canonical ID.
func Approved(toEmail, toName string, canonicalID domain.CanonicalID) Message {
	return Message{
		ToEmail: toEmail,
		ToName:  toName,
		Subject: "Your registration has been approved",
		PlainBody: fmt.Sprintf(
			"Hello %s,\n\n"+
				"Your registration has been approved.\n\n"+
				"Your registry ID is: %s\n\n"+
				"Keep this ID for your records; it identifies you in all registry lookups.\n",
			toName, canonicalID),
		HTMLBody: fmt.Sprintf(
			"<p>Hello %s,</p>"+
				"<p>Your registration has been approved.</p>"+
				"<p>Your registry ID is: <strong>%s</strong></p>"+
				"<p>Keep this ID for your records; it identifies you in all registry lookups.</p>",
			toName, canonicalID),
	}
}

// Rejected is sent when an admin rejects the registration.
func Rejected(toEmail, toName, reason string) Message {
	if reason == "" {
		reason = "The submitted information could not be validated."
	}
	return Message{
		ToEmail: toEmail,
		ToName:  toName,
		Subject: "Your registration was not approved",
		PlainBody: fmt.Sprintf(
			"Hello %s,\n\n"+
				"We are sorry, but your registration was not approved.\n\n"+
				"Reason: %s\n\n"+
				"You may submit a new registration with corrected information.\n",
			toName, reason),
		HTMLBody: fmt.Sprintf(
			"<p>Hello %s,</p>"+
				"<p>We are sorry, but your registration was not approved.</p>"+
				"<p>Reason: %s</p>"+
				"<p>You may submit a new registration with corrected information.</p>",
			toName, reason),
	}
}

// PendingReview notifies the admin mailbox that a registration is
// waiting for review.
func PendingReview(toEmail, registrantName, entityType string) Message {
	return Message{
		ToEmail: toEmail,
		ToName:  "Registry Admin",
		Subject: fmt.Sprintf("New %s registration pending review", entityType),
		PlainBody: fmt.Sprintf(
			"A new %s registration from %s is waiting for review.\n",
			entityType, registrantName),
		HTMLBody: fmt.Sprintf(
			"<p>A new %s registration from %s is waiting for review.</p>",
			entityType, registrantName),
	}
}
