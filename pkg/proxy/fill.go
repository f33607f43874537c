package proxy

import (
	"strings"
)

// Maximum number of substitution rounds. Values may contain placeholders of
// their own; anything still unresolved after this many rounds is left as is.
const maxFillPasses = 5

// Var binds the placeholder {{Name}} to Value.
type Var struct {
	Name  string
	Value string
}

// Fill replaces every {{Name}} in template with its value. Vars are applied
// in order, and the whole list is applied again until a round changes
// nothing. Only use it to assemble static fragments; see FillOnce.
func Fill(template string, vars ...Var) string {
	out := template
	for pass := 0; pass < maxFillPasses; pass++ {
		changed := false
		for _, v := range vars {
			needle := "{{" + v.Name + "}}"
			if strings.Contains(out, needle) {
				out = strings.ReplaceAll(out, needle, v.Value)
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return out
}

// FillOnce replaces every {{Name}} in template in a single scan. Substituted
// text is never searched again, so values taken from the input binary or the
// command line come out verbatim even when they contain {{...}}.
func FillOnce(template string, vars ...Var) string {
	pairs := make([]string, 0, 2*len(vars))
	for _, v := range vars {
		pairs = append(pairs, "{{"+v.Name+"}}", v.Value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// CString escapes s for use inside a C string literal. Question mark pairs
// are split so no trigraph can form.
func CString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			b.WriteString(`\\`)
		case c == '"':
			b.WriteString(`\"`)
		case c == '?' && i+1 < len(s) && s[i+1] == '?':
			b.WriteString(`?\`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20 || c == 0x7f:
			b.WriteString(`\` + string([]byte{'0' + c>>6, '0' + (c>>3)&7, '0' + c&7}))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
