package analysis

// ExtractJSONObject returns the earliest-starting balanced {...} block in
// text. Braces inside JSON string literals are ignored, so markdown fences
// and surrounding prose are tolerated. Quotes outside any open brace are
// prose and do not start a string. An opening brace that never balances is
// skipped.
//
// The scan is a single pass: open braces are kept on a stack of offsets, and
// the first time the stack empties the earliest block is final.
func ExtractJSONObject(text string) (string, bool) {
	var (
		open       []int
		inString   bool
		escaped    bool
		start, end = -1, -1
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if len(open) > 0 {
				inString = true
			}
		case '{':
			open = append(open, i)
		case '}':
			if len(open) == 0 {
				continue
			}
			s := open[len(open)-1]
			open = open[:len(open)-1]
			if start < 0 || s < start {
				start, end = s, i
			}
			if len(open) == 0 {
				return text[start : end+1], true
			}
		}
	}
	if start < 0 {
		return "", false
	}
	return text[start : end+1], true
}
