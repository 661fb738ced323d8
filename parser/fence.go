package parser

// Markdown fence handling. Models frequently wrap the whole directive block
// in a code fence. Two shapes occur in practice:
//
//	```xml<artifact ...>        (fence hugs the tag)
//	```\n\n<artifact ...>       (fence detached by whitespace)
//
// The scanner never copies fence markers adjacent to artifact tags into the
// display output, and it withholds a trailing run that could still become
// such a marker so that chunked and whole-input parses agree.
//
// The holdback trades display latency for chunk invariance: a stream whose
// current tail is a bare backtick run stays withheld until the next Parse
// call disambiguates it. There is no end-of-turn signal in the contract, so
// a turn that genuinely ends on backticks surfaces them only when more
// input (even unrelated text in a later call) arrives. Settled output is
// never affected.

// fenceHoldback returns the index in s where a potentially pending fence
// marker begins, or len(s) when the tail cannot become one. The pending
// pattern is: 1-3 backticks, an optional language word, optional trailing
// whitespace, extending to the end of s.
func fenceHoldback(s string) int {
	j := len(s)
	for j > 0 && isFenceSpace(s[j-1]) {
		j--
	}
	k := j
	for k > 0 && isWordByte(s[k-1]) {
		k--
	}
	b := k
	for b > 0 && s[b-1] == '`' {
		b--
	}
	ticks := k - b
	if ticks == 0 || ticks > 3 {
		return len(s)
	}
	return b
}

// fenceToken measures a complete fence marker at the start of s: three or
// more backticks, an optional language word, and any following whitespace.
// Returns the marker length and true on match.
func fenceToken(s string) (int, bool) {
	i := 0
	for i < len(s) && s[i] == '`' {
		i++
	}
	if i < 3 {
		return 0, false
	}
	for i < len(s) && isWordByte(s[i]) {
		i++
	}
	for i < len(s) && isFenceSpace(s[i]) {
		i++
	}
	return i, true
}

func isFenceSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
