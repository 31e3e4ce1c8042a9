package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var cardTemplate = template.Must(template.New("keepsake.html").Funcs(template.FuncMap{
	"celebrationDate": CelebrationDate,
}).ParseFS(templateFS, "templates/keepsake.html"))

// CardSelector is the element captured for PNG keepsakes.
const CardSelector = "#keepsake-card"

// CelebrationDate is the date line printed on the card.
func CelebrationDate(t time.Time) string {
	return "Valentine's Day " + t.Format("Monday, January 2, 2006")
}

// RenderCardHTML renders the keepsake page. html/template escapes the names.
func RenderCardHTML(card Card) (string, error) {
	var buf bytes.Buffer
	if err := cardTemplate.Execute(&buf, card); err != nil {
		return "", err
	}
	return buf.String(), nil
}
