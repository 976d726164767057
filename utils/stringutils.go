package utils

import "unicode"

// IsBlank reports whether str is empty or all whitespace.
func IsBlank(str string) bool {
	if str == "" {
		return true
	}

	for _, c := range str {
		if !unicode.IsSpace(c) {
			return false
		}
	}
	return true
}
