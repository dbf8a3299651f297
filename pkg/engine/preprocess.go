package engine

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// preprocessSource rewrites scene source before it reaches zygomys:
//
//  1. :keyword becomes the string literal "__kw_keyword", so keywords never
//     collide with user variables.
//  2. Kebab-case identifiers become snake_case (min-size -> min_size);
//     zygomys reads a hyphen as subtraction.
//  3. ; line comments become // comments.
//
// String literals are copied untouched.
func preprocessSource(source string) string {
	out := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		switch {
		case b[i] == '"':
			j := skipQuoted(b, i)
			out = append(out, b[i:j]...)
			i = j
			continue

		case b[i] == '`':
			j := i + 1
			for j < len(b) && b[j] != '`' {
				j++
			}
			if j < len(b) {
				j++
			}
			out = append(out, b[i:j]...)
			i = j
			continue

		case b[i] == ';':
			out = append(out, '/', '/')
			i++
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				out = append(out, b[i])
				i++
			}
			continue

		case b[i] == ':' && i+1 < len(b) && b[i+1] == '=':
			out = append(out, ':', '=')
			i += 2
			continue

		case b[i] == ':' && i+1 < len(b) && isLetter(b[i+1]):
			j := i + 1
			for j < len(b) && isKWChar(b[j]) {
				j++
			}
			out = append(out, '"')
			out = append(out, kwPrefix...)
			out = append(out, b[i+1:j]...)
			out = append(out, '"')
			i = j
			continue

		// Only a hyphen between identifier characters; a minus sign stays.
		case b[i] == '-' && i > 0 && i+1 < len(b) && isIdentChar(b[i-1]) && isLetter(b[i+1]):
			out = append(out, '_')
			i++
			continue
		}
		out = append(out, b[i])
		i++
	}
	return string(out)
}

// skipQuoted returns the index just past the double-quoted literal that
// starts at b[i], honoring backslash escapes.
func skipQuoted(b []byte, i int) int {
	j := i + 1
	for j < len(b) && b[j] != '"' {
		if b[j] == '\\' && j+1 < len(b) {
			j += 2
			continue
		}
		j++
	}
	if j < len(b) {
		j++
	}
	return j
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}
