package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/mail"
	"net/smtp"
	"time"

	"github.com/redmonkez12/docstamp-api/internal/config"
	"github.com/redmonkez12/docstamp-api/internal/logging"
)

// Used when the caller's context carries no deadline
const defaultSendTimeout = 30 * time.Second

// sendFunc is smtp.SendMail with a context
type sendFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	smtpHost     string
	smtpPort     string
	smtpUser     string
	smtpPassword string
	fromEmail    string
	send         sendFunc
}

func NewService(cfg config.EmailConfig) *Service {
	return &Service{
		smtpHost:     cfg.SMTPHost,
		smtpPort:     cfg.SMTPPort,
		smtpUser:     cfg.SMTPUser,
		smtpPassword: cfg.SMTPPassword,
		fromEmail:    cfg.Sender(),
		send:         sendMail,
	}
}

var otpTemplate = template.Must(template.New("otp").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body {
            font-family: Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
        }
        .header {
            background-color: #4F46E5;
            color: white;
            padding: 20px;
            text-align: center;
            border-radius: 5px 5px 0 0;
        }
        .content {
            background-color: #f9f9f9;
            padding: 30px;
            border-radius: 0 0 5px 5px;
        }
        .code {
            font-size: 32px;
            font-weight: bold;
            letter-spacing: 8px;
            color: #4F46E5;
            text-align: center;
            margin: 20px 0;
        }
        .footer {
            margin-top: 30px;
            font-size: 12px;
            color: #666;
            text-align: center;
        }
    </style>
</head>
<body>
    <div class="header">
        <h1>DocStamp</h1>
    </div>
    <div class="content">
        <h2>Hello {{.Name}},</h2>
        <p>Use the code below to verify your account.</p>
        <p class="code">{{.Code}}</p>
        <p>If you didn't request this code, you can safely ignore this email.</p>
    </div>
    <div class="footer">
        <p>This code expires in {{.ValidMinutes}} minutes and can only be used once.</p>
    </div>
</body>
</html>
`))

// SendOTPEmail delivers a one-time verification code. It gives up when ctx
// is done.
func (s *Service) SendOTPEmail(ctx context.Context, toEmail, name, code string, validFor time.Duration) error {
	logger := logging.GetLoggerFromContext(ctx)

	body, err := renderOTPEmail(name, code, validFor)
	if err != nil {
		logger.Error("failed to render otp email template", "error", err)
		return fmt.Errorf("render template: %w", err)
	}

	if err := s.Send(ctx, toEmail, "Your verification code", body); err != nil {
		logger.Error("failed to send otp email", "email", toEmail, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	logger.Info("otp email sent", "email", toEmail)
	return nil
}

// Send delivers an HTML message. The SMTP exchange is abandoned when ctx is done.
func (s *Service) Send(ctx context.Context, to, subject, body string) error {
	if s.smtpHost == "" {
		return fmt.Errorf("smtp host is not configured")
	}

	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		s.fromEmail, to, subject, body,
	))

	var auth smtp.Auth
	if s.smtpUser != "" {
		auth = smtp.PlainAuth("", s.smtpUser, s.smtpPassword, s.smtpHost)
	}
	addr := net.JoinHostPort(s.smtpHost, s.smtpPort)

	if err := s.send(ctx, addr, auth, envelopeAddress(s.fromEmail), []string{to}, msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ctxErr, err)
		}
		return err
	}
	return nil
}

// envelopeAddress strips the display name from a From header value
func envelopeAddress(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return from
	}
	return addr.Address
}

// sendMail does what smtp.SendMail does over a connection bound to ctx.
// Cancelling ctx expires the connection deadline, so a stalled server cannot
// hold the call open.
func sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid smtp address: %w", err)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer conn.Close()

	if _, ok := ctx.Deadline(); !ok {
		if err := conn.SetDeadline(time.Now().Add(defaultSendTimeout)); err != nil {
			return fmt.Errorf("set smtp deadline: %w", err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("smtp: server doesn't support AUTH")
		}
		if err := c.Auth(a); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt to: %w", err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}

	return c.Quit()
}

func renderOTPEmail(name, code string, validFor time.Duration) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Name         string
		Code         string
		ValidMinutes int
	}{
		Name:         name,
		Code:         code,
		ValidMinutes: int(validFor.Round(time.Minute).Minutes()),
	}

	if err := otpTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}
