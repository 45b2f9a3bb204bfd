package mail

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

var verificationTemplate = template.Must(template.New("verification").Parse(
	`Hello,

Please confirm your email address for your registration{{if .EventName}} to {{.EventName}}{{end}}.

Open this link to verify:
{{.Link}}

The link expires at {{.ExpiresAt}} (UTC) and can be used once.
{{if .TrackingCode}}
Your tracking code is {{.TrackingCode}}.
{{end}}
If you did not register, you can ignore this email.
`))

// VerificationData feeds the verification email template.
type VerificationData struct {
	EventName    string
	TrackingCode string
	Link         string
	ExpiresAt    time.Time
}

// VerificationEmail renders the subject and body of a verification email.
func VerificationEmail(d VerificationData) (subject, body string, err error) {
	var buf bytes.Buffer
	err = verificationTemplate.Execute(&buf, struct {
		VerificationData
		ExpiresAt string
	}{d, d.ExpiresAt.UTC().Format("2006-01-02 15:04")})
	if err != nil {
		return "", "", fmt.Errorf("failed to render verification email: %w", err)
	}

	subject = "Confirm your email address"
	if d.EventName != "" {
		subject = fmt.Sprintf("Confirm your registration for %s", d.EventName)
	}
	return subject, buf.String(), nil
}
