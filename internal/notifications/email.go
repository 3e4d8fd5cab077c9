package notifications

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"
	"strings"
)

// Message is a rendered email ready for transport.
type Message struct {
	To        string
	Subject   string
	PlainBody string
	HTMLBody  string
}

// Mailer delivers rendered messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// EmailDispatcher renders and sends the activation and password-reset emails.
// Delivery failures propagate to the caller rather than being swallowed.
type EmailDispatcher struct {
	mailer      Mailer
	frontendURL string
	logger      *slog.Logger
}

// NewEmailDispatcher constructs a dispatcher linking back to the frontend at
// the provided base URL.
func NewEmailDispatcher(mailer Mailer, frontendURL string, logger *slog.Logger) *EmailDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailDispatcher{
		mailer:      mailer,
		frontendURL: strings.TrimSuffix(frontendURL, "/"),
		logger:      logger,
	}
}

// UserRegistered sends the account activation email.
func (d *EmailDispatcher) UserRegistered(ctx context.Context, event UserRegistered) error {
	link := d.deepLink("/pages/auth/activate.html", event.User.ID, event.Token)

	msg, err := renderMessage(event.User.Email, "Activate Your Videoflix Account", activationTmpl, emailData{
		UserName: event.User.Email,
		Link:     link,
	})
	if err != nil {
		return err
	}

	if err := d.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send activation email: %w", err)
	}

	d.logger.Info("activation email sent", "user_id", event.User.ID)
	return nil
}

// PasswordResetRequested sends the password reset email.
func (d *EmailDispatcher) PasswordResetRequested(ctx context.Context, event PasswordResetRequested) error {
	link := d.deepLink("/pages/auth/reset_password.html", event.User.ID, event.Token)

	msg, err := renderMessage(event.User.Email, "Reset Your Videoflix Password", resetTmpl, emailData{
		UserName: event.User.Email,
		Link:     link,
	})
	if err != nil {
		return err
	}

	if err := d.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send password reset email: %w", err)
	}

	d.logger.Info("password reset email sent", "user_id", event.User.ID)
	return nil
}

func (d *EmailDispatcher) deepLink(page, userID, token string) string {
	query := url.Values{}
	query.Set("uid", userID)
	query.Set("token", token)
	return d.frontendURL + page + "?" + query.Encode()
}

type emailData struct {
	UserName string
	Link     string
}

type emailTemplates struct {
	plain string
	html  *template.Template
}

var activationTmpl = emailTemplates{
	plain: "Hi %s,\n\nPlease activate your account by visiting: %s\n",
	html: template.Must(template.New("activation").Parse(`<html><body>
<p>Hi {{.UserName}},</p>
<p>Welcome to Videoflix! Please confirm your email address to activate your account.</p>
<p><a href="{{.Link}}">Activate account</a></p>
<p>If you did not sign up, you can ignore this email.</p>
</body></html>`)),
}

var resetTmpl = emailTemplates{
	plain: "Hi %s,\n\nReset your password by visiting: %s\n",
	html: template.Must(template.New("reset").Parse(`<html><body>
<p>Hi {{.UserName}},</p>
<p>We received a request to reset your Videoflix password.</p>
<p><a href="{{.Link}}">Choose a new password</a></p>
<p>If you did not request a reset, you can ignore this email; your password is unchanged.</p>
</body></html>`)),
}

func renderMessage(to, subject string, tmpl emailTemplates, data emailData) (Message, error) {
	var html strings.Builder
	if err := tmpl.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render email %q: %w", subject, err)
	}

	return Message{
		To:        to,
		Subject:   subject,
		PlainBody: fmt.Sprintf(tmpl.plain, data.UserName, data.Link),
		HTMLBody:  html.String(),
	}, nil
}
