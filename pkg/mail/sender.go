package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

const (
	SMTP_PORT = 587
)

//go:embed templates/*.html
var templatesFS embed.FS

var feedbackTemplates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

type serviceResponseDTO struct {
	Err               error
	CountOfFailedRows int
	ErrsOfFailedRows  []string
	AddedParticipants []string
	CountOfAddedParts int
}

func (r serviceResponseDTO) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func parseTemplate(subject string, data interface{}, templateName string) ([]byte, error) {
	buf := new(bytes.Buffer)
	mimeHeaders := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	buf.Write([]byte(fmt.Sprintf("Subject: %s \n%s\n\n", subject, mimeHeaders)))

	if err := feedbackTemplates.ExecuteTemplate(buf, templateName, data); err != nil {
		return nil, fmt.Errorf("parseTemplate failed: %w", err)
	}

	return buf.Bytes(), nil
}

func smtpHost(imapHost string) string {
	return strings.ReplaceAll(imapHost, "imap", "smtp")
}

func (s *Service) mailboxAuth(mailboxData *connectionCredentials) smtp.Auth {
	return smtp.PlainAuth("", mailboxData.username, mailboxData.password, smtpHost(mailboxData.hostname))
}

func (s *Service) responseToLetter(to string, subject string, mailboxData *connectionCredentials, resp serviceResponseDTO) error {
	addr := fmt.Sprintf("%s:%d", smtpHost(mailboxData.hostname), SMTP_PORT)

	var err error
	var body []byte
	if resp.Err != nil {
		body, err = parseTemplate(subject, resp, "negativeFeedback.html")
	} else {
		body, err = parseTemplate(subject, resp, "positiveFeedback.html")
	}
	if err != nil {
		return fmt.Errorf("responseToLetter failed: %w", err)
	}

	if err := s.sendMail(addr, s.mailboxAuth(mailboxData), mailboxData.username, []string{to}, body); err != nil {
		return fmt.Errorf("responseToLetter failed: %w", err)
	}

	return nil
}
