package core

import "github.com/rivo/uniseg"

// GraphemeLen counts user-perceived characters (grapheme clusters)
// rather than bytes or runes, matching the "N graphemes" bounds the
// spec places on titles, descriptions, and names (§4.1, §4.4).
func GraphemeLen(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// EscapeScriptTags HTML-escape-encodes `<script>`-shaped substrings so
// stored free text cannot be used to inject markup when rendered
// verbatim by a client (spec §4.1: "HTML <script> forms are
// escape-encoded").
func EscapeScriptTags(s string) string {
	out := make([]rune, 0, len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if matchesFold(runes, i, "<script") {
			out = append(out, []rune("&lt;script")...)
			i += len("<script") - 1
			continue
		}
		if matchesFold(runes, i, "</script") {
			out = append(out, []rune("&lt;/script")...)
			i += len("</script") - 1
			continue
		}
		out = append(out, runes[i])
	}
	return string(out)
}

func matchesFold(runes []rune, at int, want string) bool {
	w := []rune(want)
	if at+len(w) > len(runes) {
		return false
	}
	for i, r := range w {
		a, b := r, runes[at+i]
		if a >= 'A' && a <= 'Z' {
			a += 'a' - 'A'
		}
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}
