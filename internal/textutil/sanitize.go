package textutil

import (
	"path/filepath"
	"strings"
	"unicode"
)

// MaxLabelRunes bounds stored source labels.
const MaxLabelRunes = 200

// labelReplacer maps path separators and shell-hostile characters out of
// client-supplied names.
var labelReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeLabel turns a client-supplied file name into a display label. The
// directory part is dropped, unsafe characters are replaced, control
// characters removed, and the result truncated to MaxLabelRunes.
func SanitizeLabel(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(labelReplacer.Replace(name))
	if name == "." || name == ".." {
		return ""
	}
	if runes := []rune(name); len(runes) > MaxLabelRunes {
		name = string(runes[:MaxLabelRunes])
	}
	return name
}

// SafeExtension returns the lowercase extension of name when it is short and
// alphanumeric, or "" otherwise. The result includes the leading dot.
func SafeExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(SanitizeLabel(name)))
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}
