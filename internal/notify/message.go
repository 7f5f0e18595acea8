package notify

import (
	"fmt"
	"html"
	"strings"
)

// Message is a rendered email.
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

func statusText(status string) (label, color string) {
	if status == "present" {
		return "Present ✅", "#4caf50"
	}
	return "Absent ❌", "#f44336"
}

// Compose renders the attendance email for n.
func Compose(from string, n Notification) (Message, error) {
	to := strings.TrimSpace(n.To)
	if to == "" {
		return Message{}, ErrNoRecipient
	}
	label, color := statusText(n.Status)

	var text strings.Builder
	fmt.Fprintf(&text, "Attendance Notification\n\nDear %s,\n\n", n.StudentName)
	text.WriteString("Your attendance has been marked for the following class:\n\n")
	fmt.Fprintf(&text, "Subject: %s\nDate: %s\nPeriod: %s\nRoll Number: %s\nStatus: %s\n\n",
		n.SubjectName, n.Date, n.Period, n.RollNo, label)
	text.WriteString("If you believe there is an error in your attendance record, please contact your class teacher or HOD.\n\n")
	text.WriteString("---\nThis is an automated email. Please do not reply.\n")

	e := html.EscapeString
	var body strings.Builder
	body.WriteString(`<html><body style="font-family: Arial, sans-serif; color: #333;">`)
	body.WriteString(`<h2 style="color: #1E3A8A;">Attendance Notification</h2>`)
	fmt.Fprintf(&body, `<p>Dear <strong>%s</strong>,</p>`, e(n.StudentName))
	body.WriteString(`<p>Your attendance has been marked for the following class:</p><div style="background-color: #f5f5f5; padding: 15px;">`)
	fmt.Fprintf(&body, `<p><strong>Subject:</strong> %s</p><p><strong>Date:</strong> %s</p><p><strong>Period:</strong> %s</p><p><strong>Roll Number:</strong> %s</p>`,
		e(n.SubjectName), e(n.Date), e(n.Period), e(n.RollNo))
	fmt.Fprintf(&body, `<p><strong>Status:</strong> <span style="color: %s; font-weight: bold;">%s</span></p></div>`, color, e(label))
	body.WriteString(`<p>If you believe there is an error in your attendance record, please contact your class teacher or HOD.</p>`)
	body.WriteString(`<p style="color: #666; font-size: 12px;">This is an automated email. Please do not reply.</p></body></html>`)

	return Message{
		From:    from,
		To:      to,
		Subject: fmt.Sprintf("Attendance Marked - %s (%s)", n.SubjectName, n.Date),
		Text:    text.String(),
		HTML:    body.String(),
	}, nil
}
