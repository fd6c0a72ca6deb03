package lib

import "strings"

const escape = "\\"

// VerifyDelimiter converts a hierarchical name from one delimiter to another.
// Occurrences of the expected delimiter already in the name are escaped.
func VerifyDelimiter(name, existingDelimiter, expectedDelimiter string) string {
	if existingDelimiter == expectedDelimiter || existingDelimiter == "" || expectedDelimiter == "" {
		return name
	}
	return strings.Join(
		escapeAll(strings.Split(name, existingDelimiter), expectedDelimiter),
		expectedDelimiter,
	)
}

// SplitDelimited splits a name produced by VerifyDelimiter back into its parts,
// ignoring escaped delimiters.
func SplitDelimited(name, delimiter string) []string {
	if delimiter == "" {
		return []string{name}
	}
	parts := make([]string, 0, strings.Count(name, delimiter)+1)
	current := &strings.Builder{}
	for len(name) > 0 {
		switch {
		case strings.HasPrefix(name, escape+delimiter):
			current.WriteString(delimiter)
			name = name[len(escape)+len(delimiter):]
		case strings.HasPrefix(name, delimiter):
			parts = append(parts, current.String())
			current.Reset()
			name = name[len(delimiter):]
		default:
			current.WriteByte(name[0])
			name = name[1:]
		}
	}
	return append(parts, current.String())
}

func escapeAll(parts []string, delimiter string) []string {
	for i, part := range parts {
		parts[i] = strings.ReplaceAll(part, delimiter, escape+delimiter)
	}
	return parts
}
