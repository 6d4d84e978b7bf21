package notification

import (
	"bytes"
	"fmt"
	"text/template"
)

// Templates holds the email bodies keyed by template ID. The IDs mirror
// the notification type values so the delivery path needs no mapping
// table; "generic" covers everything without a dedicated body.
var Templates = map[string]string{
	"booking_confirmed": `Hi {{.UserName}},

Your seat is confirmed! {{.Message}}

We'll remind you before it starts. You can manage your booking in the app.

See you at the table,
The Tablemate Team`,

	"booking_cancelled": `Hi {{.UserName}},

{{.Message}}

If this wasn't you, or you'd like to find another dinner, open the app and browse what's coming up.

The Tablemate Team`,

	"dinner_reminder": `Hi {{.UserName}},

{{.Message}}

The Tablemate Team`,

	"generic": `Hi {{.UserName}},

{{.Title}}

{{.Message}}

The Tablemate Team`,
}

// RenderTemplate renders the body for templateID, falling back to the
// generic body when no dedicated one exists.
func RenderTemplate(templateID string, data map[string]string) (string, error) {
	body, ok := Templates[templateID]
	if !ok {
		body = Templates["generic"]
	}

	tmpl, err := template.New(templateID).Parse(body)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", templateID, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", templateID, err)
	}
	return buf.String(), nil
}
