// Package compose builds the text an operator forwards to an end user.
package compose

import (
	"fmt"
	"os"
	"strings"
)

// Placeholders substituted by Compose.
const (
	LinkPlaceholder  = "{link}"
	TokenPlaceholder = "{token}"
)

// DefaultTemplate is used when no template is configured.
const DefaultTemplate = `Hello, here is your entry link and access code:

Entry link:
{link}

Access code:
{token}

Open the link and enter the access code to continue.`

// Compose substitutes every link and token placeholder in tpl with the
// trimmed link and token. A blank tpl selects DefaultTemplate. Text without
// placeholders is returned unchanged.
func Compose(tpl, link, token string) string {
	if strings.TrimSpace(tpl) == "" {
		tpl = DefaultTemplate
	}
	r := strings.NewReplacer(
		LinkPlaceholder, strings.TrimSpace(link),
		TokenPlaceholder, strings.TrimSpace(token),
	)
	return r.Replace(tpl)
}

// LoadTemplate reads a template file. An empty path yields "".
func LoadTemplate(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read message template: %w", err)
	}
	return string(data), nil
}
