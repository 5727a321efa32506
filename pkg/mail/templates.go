package mail

import (
	"bytes"
	"embed"
	"html/template"
	"sort"

	"github.com/Masterminds/sprig/v3"
)

// DefaultStyle is used for unknown or empty style ids.
const DefaultStyle = "default"

// Params is the data every style renders. Subject and Message were escaped
// during validation and are inserted as-is; Recipient is escaped here.
type Params struct {
	Subject   template.HTML
	Message   template.HTML
	Recipient string
}

var (
	//go:embed templates/*.html
	templateFS embed.FS

	styles = map[string]*template.Template{}
)

func init() {
	for _, name := range []string{"default", "announcement", "registration"} {
		t, err := template.New(name).Funcs(sprig.FuncMap()).ParseFS(templateFS, "templates/footer.html", "templates/"+name+".html")
		if err != nil {
			panic(err)
		}
		styles[name] = t
	}
}

func render(t *template.Template, name string, p any) (string, error) {
	b := bytes.Buffer{}
	err := t.ExecuteTemplate(&b, name+".html", p)
	return b.String(), err
}

// Render produces the HTML body for style, falling back to DefaultStyle.
// subject and message must already be HTML-escaped.
func Render(style, subject, message, recipient string) (string, error) {
	t, ok := styles[style]
	if !ok {
		style = DefaultStyle
		t = styles[style]
	}
	return render(t, style, Params{
		Subject:   template.HTML(subject),
		Message:   template.HTML(message),
		Recipient: recipient,
	})
}

// HasStyle reports whether style names a registered template.
func HasStyle(style string) bool {
	_, ok := styles[style]
	return ok
}

// Styles lists the registered style ids in sorted order.
func Styles() []string {
	out := make([]string, 0, len(styles))
	for name := range styles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
