// internal/app/system/mailer/templates.go
package mailer

import (
	"bytes"
	"html/template"
	"strings"
)

// WelcomeEmailData is sent after a client registers or staff is created.
type WelcomeEmailData struct {
	BrandName string
	UserName  string
	LoginURL  string
	Staff     bool
}

// CaseStatusEmailData is sent to the client when staff move their case.
type CaseStatusEmailData struct {
	BrandName   string
	UserName    string
	CaseNumber  string
	StatusLabel string
	Note        string
	CaseURL     string
}

// CaseMessageEmailData tells the other side a chat message arrived.
type CaseMessageEmailData struct {
	BrandName  string
	UserName   string
	CaseNumber string
	SenderName string
	CaseURL    string
}

// StatusLabel turns a case status into words for people.
func StatusLabel(status string) string {
	s := strings.ReplaceAll(status, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// WelcomeEmail renders the welcome email.
func WelcomeEmail(d WelcomeEmailData) Email {
	text := "Welcome to " + d.BrandName + ", " + d.UserName + "!\n\n"
	if d.Staff {
		text += "A staff account has been created for you. Sign in at:\n" + d.LoginURL + "\n"
	} else {
		text += "Your account is ready. You can start an application and track it at:\n" + d.LoginURL + "\n"
	}
	return Email{
		Subject:  "Welcome to " + d.BrandName,
		TextBody: text,
		HTMLBody: render(welcomeTmpl, d.BrandName, d),
	}
}

// CaseStatusEmail renders a case status update.
func CaseStatusEmail(d CaseStatusEmailData) Email {
	text := "Hello " + d.UserName + ",\n\n" +
		"Your application " + d.CaseNumber + " is now: " + d.StatusLabel + ".\n"
	if d.Note != "" {
		text += "\nNote from our team:\n" + d.Note + "\n"
	}
	text += "\nView your application:\n" + d.CaseURL + "\n"
	return Email{
		Subject:  "Application " + d.CaseNumber + ": " + d.StatusLabel,
		TextBody: text,
		HTMLBody: render(caseStatusTmpl, d.BrandName, d),
	}
}

// CaseMessageEmail renders a new chat message notice.
func CaseMessageEmail(d CaseMessageEmailData) Email {
	text := "Hello " + d.UserName + ",\n\n" +
		d.SenderName + " sent a new message about application " + d.CaseNumber + ".\n\n" +
		"Read and reply:\n" + d.CaseURL + "\n"
	return Email{
		Subject:  "New message on application " + d.CaseNumber,
		TextBody: text,
		HTMLBody: render(caseMessageTmpl, d.BrandName, d),
	}
}

type layoutData struct {
	BrandName string
	Body      template.HTML
}

func render(body *template.Template, brand string, data any) string {
	var inner bytes.Buffer
	if err := body.Execute(&inner, data); err != nil {
		return ""
	}
	var out bytes.Buffer
	if err := layoutTmpl.Execute(&out, layoutData{BrandName: brand, Body: template.HTML(inner.String())}); err != nil {
		return ""
	}
	return out.String()
}

const buttonStyle = `display: inline-block; padding: 12px 28px; background-color: #1d4ed8; color: #ffffff; text-decoration: none; font-size: 15px; font-weight: 600; border-radius: 6px;`

var layoutTmpl = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><meta name="viewport" content="width=device-width, initial-scale=1.0"><title>{{.BrandName}}</title></head>
<body style="margin: 0; padding: 0; font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; background-color: #f4f4f5;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="background-color: #f4f4f5;">
    <tr><td align="center" style="padding: 40px 20px;">
      <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width: 520px; background-color: #ffffff; border-radius: 8px;">
        <tr><td style="padding: 28px 32px; border-bottom: 1px solid #e4e4e7; text-align: center;">
          <h1 style="margin: 0; font-size: 22px; color: #18181b;">{{.BrandName}}</h1>
        </td></tr>
        <tr><td style="padding: 32px; font-size: 15px; line-height: 1.6; color: #3f3f46;">{{.Body}}</td></tr>
      </table>
    </td></tr>
  </table>
</body>
</html>`))

var welcomeTmpl = template.Must(template.New("welcome").Parse(`<p>Welcome, {{.UserName}}!</p>
{{if .Staff}}<p>A staff account has been created for you.</p>{{else}}<p>Your account is ready. You can start an application and follow its progress online.</p>{{end}}
<p><a href="{{.LoginURL}}" style="` + buttonStyle + `">Sign in</a></p>`))

var caseStatusTmpl = template.Must(template.New("case_status").Parse(`<p>Hello {{.UserName}},</p>
<p>Your application <strong>{{.CaseNumber}}</strong> is now <strong>{{.StatusLabel}}</strong>.</p>
{{if .Note}}<p style="padding: 12px 16px; background-color: #f4f4f5; border-radius: 6px;">{{.Note}}</p>{{end}}
<p><a href="{{.CaseURL}}" style="` + buttonStyle + `">View application</a></p>`))

var caseMessageTmpl = template.Must(template.New("case_message").Parse(`<p>Hello {{.UserName}},</p>
<p>{{.SenderName}} sent a new message about application <strong>{{.CaseNumber}}</strong>.</p>
<p><a href="{{.CaseURL}}" style="` + buttonStyle + `">Read and reply</a></p>`))
