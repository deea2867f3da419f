package skills

import "strings"

// RenderXML produces the <available_skills> block appended to the system
// prompt. Skills are listed sorted by name; <location> is omitted when empty.
// Returns "" when the registry is empty.
func (r *Registry) RenderXML() string {
	list := r.List()
	if len(list) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("<available_skills>\n")
	for _, s := range list {
		b.WriteString("  <skill>\n")
		b.WriteString("    <name>" + escapeXML(s.Name) + "</name>")
		b.WriteString("<description>" + escapeXML(s.Description) + "</description>\n")
		if s.Location != "" {
			b.WriteString("    <location>" + escapeXML(s.Location) + "</location>\n")
		}
		b.WriteString("  </skill>\n")
	}
	b.WriteString("</available_skills>")
	return b.String()
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeXML(s string) string { return xmlEscaper.Replace(s) }
