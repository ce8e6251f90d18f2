// internal/app/system/mailer/templates.go
package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// ConfirmationEmailData holds data for the receipt sent to the guardian.
type ConfirmationEmailData struct {
	SubmittedAt time.Time
	Contact     string
	Telephone   string
}

// BuildConfirmationEmail creates the acknowledgement of a new request.
func BuildConfirmationEmail(data ConfirmationEmailData) Email {
	return Email{
		To:       "", // Set by caller
		Subject:  "Accusé de réception",
		TextBody: buildConfirmationText(data),
		HTMLBody: render(confirmationHTML, data),
	}
}

func buildConfirmationText(data ConfirmationEmailData) string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("Votre demande de bourse du %s a bien été envoyée à votre établissement.\n", data.SubmittedAt.Format("02/01/2006")))
	buf.WriteString("Vous recevrez une réponse avant le 15 octobre au plus tard.\n\n")
	buf.WriteString(fmt.Sprintf("En cas de question, écrivez à %s ou contactez l'intendance au %s.\n", data.Contact, data.Telephone))
	return buf.String()
}

const confirmationHTML = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Accusé de réception</title></head>
<body style="font-family: Arial, sans-serif; color: #374151;">
  <p>Votre demande de bourse du {{.SubmittedAt.Format "02/01/2006"}} a bien été envoyée à votre établissement.</p>
  <p>Vous recevrez une réponse avant le 15 octobre au plus tard.</p>
  <p>Merci d'avoir utilisé ce service. En cas de question, écrivez à <a href="mailto:{{.Contact}}">{{.Contact}}</a> ou contactez l'intendance au {{.Telephone}}.</p>
</body>
</html>`

// AgentAlertEmailData holds data for the alert sent to the institution.
type AgentAlertEmailData struct {
	GuardianFirstNames string
	GuardianLastName   string
	BaseURL            string
	InstitutionCode    string
}

// DashboardURL is the page listing the institution's new requests.
func (d AgentAlertEmailData) DashboardURL() string {
	return strings.TrimRight(d.BaseURL, "/") + "/college/" + d.InstitutionCode + "/demandes/nouvelles"
}

// BuildAgentAlertEmail creates the new-request alert for institution staff.
func BuildAgentAlertEmail(data AgentAlertEmailData) Email {
	name := strings.TrimSpace(data.GuardianFirstNames + " " + data.GuardianLastName)
	return Email{
		Subject: "Nouvelle demande - " + name,
		TextBody: "Vous avez une nouvelle demande de bourse.\n\n" +
			"Liste des demandes passées :\n" + data.DashboardURL() + "\n",
		HTMLBody: render(agentAlertHTML, data),
	}
}

const agentAlertHTML = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Nouvelle demande</title></head>
<body style="font-family: Arial, sans-serif; color: #374151;">
  <p>Vous avez une nouvelle demande de bourse.</p>
  <h3><a href="{{.DashboardURL}}">Cliquez ici pour voir la liste des demandes passées</a></h3>
  <p>Si le lien ne marche pas, vous pouvez copier/coller cette adresse dans votre navigateur :<br>{{.DashboardURL}}</p>
</body>
</html>`

// OpenedEmailData holds data for the notice sent when staff first open a request.
type OpenedEmailData struct {
	InstitutionName string
}

// BuildOpenedEmail creates the "request is being processed" notice.
func BuildOpenedEmail(data OpenedEmailData) Email {
	text := fmt.Sprintf("Votre demande de bourse est en cours de traitement par %s.\n", data.InstitutionName)
	return Email{
		Subject:  "Demande de bourse en cours de traitement",
		TextBody: text,
		HTMLBody: render(openedHTML, data),
	}
}

const openedHTML = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Demande en cours de traitement</title></head>
<body style="font-family: Arial, sans-serif; color: #374151;">
  <p>Votre demande de bourse est en cours de traitement par {{.InstitutionName}}.</p>
</body>
</html>`

// DecisionLetterData holds the content of a decision letter. Text must
// already be sanitized HTML.
type DecisionLetterData struct {
	InstitutionName string
	Amount          float64
	DecidedAt       time.Time
	Text            string
}

// FormattedAmount renders the amount the French way, e.g. "1 250,50 €".
func (d DecisionLetterData) FormattedAmount() string {
	s := fmt.Sprintf("%.2f", d.Amount)
	intPart, frac := s[:len(s)-3], s[len(s)-2:]
	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	out := b.String() + "," + frac + " €"
	if neg {
		out = "-" + out
	}
	return out
}

// SafeText marks the sanitized text for verbatim inclusion.
func (d DecisionLetterData) SafeText() template.HTML {
	return template.HTML(d.Text)
}

// BuildDecisionLetter renders the letter archived with the notification
// and used as the body of the decision e-mail.
func BuildDecisionLetter(data DecisionLetterData) string {
	return render(decisionHTML, data)
}

// BuildDecisionEmail creates the decision e-mail.
func BuildDecisionEmail(data DecisionLetterData) Email {
	var buf bytes.Buffer
	buf.WriteString("Merci d'avoir passé votre demande avec notre service.\n\n")
	buf.WriteString(fmt.Sprintf("Décision du %s : bourse de %s.\n", data.DecidedAt.Format("02/01/2006"), data.FormattedAmount()))
	return Email{
		Subject:  "Notification demande de bourse",
		TextBody: buf.String(),
		HTMLBody: BuildDecisionLetter(data),
	}
}

const decisionHTML = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Notification demande de bourse</title></head>
<body style="font-family: Arial, sans-serif; color: #374151;">
  <h2>{{.InstitutionName}}</h2>
  <p>Décision du {{.DecidedAt.Format "02/01/2006"}}</p>
  <p>Montant de la bourse attribuée : <strong>{{.FormattedAmount}}</strong></p>
  {{if .Text}}<div>{{.SafeText}}</div>{{end}}
  <p>Merci d'avoir passé votre demande avec notre service.</p>
</body>
</html>`

func render(src string, data any) string {
	tmpl := template.Must(template.New("mail").Parse(src))
	var buf bytes.Buffer
	_ = tmpl.Execute(&buf, data)
	return buf.String()
}
