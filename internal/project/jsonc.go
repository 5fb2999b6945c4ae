package project

// StripJSONC turns tsconfig-flavoured JSON into strict JSON: line and block
// comments are blanked and trailing commas before a closing bracket are
// dropped. Byte offsets of everything else are kept, so decode errors still
// point at the right place.
func StripJSONC(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)

	const (
		code = iota
		str
		line
		block
	)
	state := code
	lastComma := -1

	for i := 0; i < len(out); i++ {
		c := out[i]
		switch state {
		case str:
			switch c {
			case '\\':
				i++
			case '"':
				state = code
			}
		case line:
			if c == '\n' {
				state = code
			} else {
				out[i] = ' '
			}
		case block:
			if c == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i], out[i+1] = ' ', ' '
				i++
				state = code
			} else if c != '\n' {
				out[i] = ' '
			}
		default:
			switch {
			case c == '"':
				state = str
				lastComma = -1
			case c == '/' && i+1 < len(out) && out[i+1] == '/':
				out[i], out[i+1] = ' ', ' '
				i++
				state = line
			case c == '/' && i+1 < len(out) && out[i+1] == '*':
				out[i], out[i+1] = ' ', ' '
				i++
				state = block
			case c == ',':
				lastComma = i
			case c == '}' || c == ']':
				if lastComma >= 0 {
					out[lastComma] = ' '
				}
				lastComma = -1
			case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			default:
				lastComma = -1
			}
		}
	}
	return out
}
