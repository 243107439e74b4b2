package command

import "strings"

// Join escapes program and args for hostOS's shell and joins them.
func Join(hostOS, program string, args ...string) string {
	var b strings.Builder
	b.WriteString(quoteProgram(hostOS, program))
	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(Quote(hostOS, arg))
	}
	return b.String()
}

// Quote escapes s as a single shell word: POSIX single quoting on unix
// hosts, double quoting for cmd.exe on windows.
func Quote(hostOS, s string) string {
	if hostOS == "windows" {
		return quoteWindows(s)
	}
	return quotePOSIX(s)
}

// quoteProgram also quotes words containing '=', which a POSIX shell
// would otherwise read as a variable assignment in command position.
func quoteProgram(hostOS, s string) string {
	if hostOS != "windows" && strings.ContainsRune(s, '=') {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return Quote(hostOS, s)
}

func quotePOSIX(s string) string {
	if s == "" {
		return "''"
	}
	if !needsQuoting(s) {
		return s
	}

	// 'foo'\''bar' -> foo'bar
	var b strings.Builder
	b.WriteByte('\'')
	for _, c := range s {
		if c == '\'' {
			b.WriteString(`'\''`)
		} else {
			b.WriteRune(c)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

func quoteWindows(s string) string {
	if s == "" {
		return `""`
	}
	if !needsQuoting(s) {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func needsQuoting(s string) bool {
	for _, c := range s {
		if !isShellSafe(c) {
			return true
		}
	}
	return false
}

// isShellSafe reports characters that never need quoting. ':' stays out
// because of its meaning in some shell contexts; '\' stays out for POSIX.
func isShellSafe(c rune) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '/' || c == '=' || c == '+' || c == ','
}
