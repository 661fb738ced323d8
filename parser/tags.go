package parser

import "strings"

// Directive tag literals per CONTRACT_DIRECTIVE.md. These are the wire
// contract with the model and must be matched exactly.
const (
	artifactOpenPrefix = "<artifact"
	artifactCloseTag   = "</artifact>"
	actionOpenPrefix   = "<action"
	actionCloseTag     = "</action>"
)

// isPartialPrefix returns true if s is a strict prefix of literal, meaning
// the scan must halt and resume once more input arrives.
func isPartialPrefix(s, literal string) bool {
	return len(s) < len(literal) && strings.HasPrefix(literal, s)
}

// matchesTagPrefix returns true if s starts with the tag prefix followed by
// a delimiter, ruling out lookalike tag names sharing the prefix.
func matchesTagPrefix(s, prefix string) bool {
	if !strings.HasPrefix(s, prefix) {
		return false
	}
	if len(s) == len(prefix) {
		// Could still grow into a longer name; callers treat this as
		// partial via isPartialPrefix first.
		return false
	}
	next := s[len(prefix)]
	return next == ' ' || next == '>' || next == '\t' || next == '\n' || next == '\r' || next == '/'
}

// attrValue extracts a double-quoted attribute value from a tag body.
// Returns the value and true when the attribute is present.
func attrValue(tag, name string) (string, bool) {
	needle := name + `="`
	idx := strings.Index(tag, needle)
	if idx == -1 {
		return "", false
	}
	rest := tag[idx+len(needle):]
	end := strings.IndexByte(rest, '"')
	if end == -1 {
		return "", false
	}
	return rest[:end], true
}

// filePathAttr extracts the file path attribute, tolerating the two
// spellings seen in model output: filePath and filepath.
func filePathAttr(tag string) (string, bool) {
	if v, ok := attrValue(tag, "filePath"); ok {
		return v, true
	}
	return attrValue(tag, "filepath")
}
