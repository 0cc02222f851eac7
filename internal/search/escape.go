package search

import "strings"

// likeEscaper backslash-escapes characters that are unsafe inside a LIKE
// pattern. Control characters get their C-style mnemonic.
var likeEscaper = strings.NewReplacer(
	"\x00", `\0`,
	"\x08", `\b`,
	"\x09", `\t`,
	"\x1a", `\z`,
	"\n", `\n`,
	"\r", `\r`,
	`"`, `\"`,
	`'`, `\'`,
	`\`, `\\`,
	`%`, `\%`,
)

// EscapeLike escapes s for use inside a LIKE pattern with ESCAPE '\'.
// Underscore is left untouched.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}
