package port

import "context"

type Mailer interface {
	SendConfirmation(ctx context.Context, email, username, link string) error
	SendRecovery(ctx context.Context, email, username, link string) error
}
