package flow

import "strings"

// RenderPathTemplate expands tmpl against captures, per section
// 4.2's "Path template" semantics: literal text, "{name}" substituted from
// captures, "{name=default}" falling back to default when name is absent,
// and "{{"/"}}" escaping literal braces. A name with no default and no
// capture renders as empty.
func RenderPathTemplate(tmpl string, captures map[string]string) string {
	var b strings.Builder
	i := 0
	for i < len(tmpl) {
		switch {
		case tmpl[i] == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			b.WriteByte('{')
			i += 2
		case tmpl[i] == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case tmpl[i] == '{':
			end := strings.IndexByte(tmpl[i:], '}')
			if end == -1 {
				b.WriteString(tmpl[i:])
				i = len(tmpl)
				break
			}
			expr := tmpl[i+1: i+end]
			i += end + 1

			name, def, hasDefault := expr, "", false
			if idx := strings.IndexByte(expr, '='); idx >= 0 {
				name, def, hasDefault = expr[:idx], expr[idx+1:], true
			}
			if v, ok := captures[name]; ok {
				b.WriteString(v)
			} else if hasDefault {
				b.WriteString(def)
			}
		default:
			b.WriteByte(tmpl[i])
			i++
		}
	}
	return b.String()
}
