package pageindex

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Compare orders two strings naturally, so that "page2" sorts before "page10".
// Runs of digits are compared by numeric value and everything else is
// compared rune by rune, ignoring case. Strings that are equal under those
// rules are ordered by leading zeros (fewer first) and then by case.
func Compare(a, b string) int {
	tie := 0
	for a != "" && b != "" {
		if isDigit(a[0]) && isDigit(b[0]) {
			var na, nb string
			na, a = digitRun(a)
			nb, b = digitRun(b)
			c, zeros := compareNumeric(na, nb)
			if c != 0 {
				return c
			}
			if tie == 0 {
				tie = zeros
			}
			continue
		}

		ra, sa := utf8.DecodeRuneInString(a)
		rb, sb := utf8.DecodeRuneInString(b)
		a, b = a[sa:], b[sb:]
		if ra == rb {
			continue
		}
		la, lb := unicode.ToLower(ra), unicode.ToLower(rb)
		if la != lb {
			return compareRunes(la, lb)
		}
		if tie == 0 {
			tie = compareRunes(ra, rb)
		}
	}

	switch {
	case a == "" && b == "":
		return tie
	case a == "":
		return -1
	default:
		return 1
	}
}

// Less reports whether a sorts before b in natural order.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

func digitRun(s string) (run, rest string) {
	i := 1
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func compareRunes(a, b rune) int {
	if a < b {
		return -1
	}
	return 1
}

// compareNumeric compares two digit runs by value. The second return value
// orders runs of equal value by their length.
func compareNumeric(a, b string) (int, int) {
	ta := strings.TrimLeft(a, "0")
	tb := strings.TrimLeft(b, "0")
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1, 0
		}
		return 1, 0
	}
	if c := strings.Compare(ta, tb); c != 0 {
		return c, 0
	}
	switch {
	case len(a) < len(b):
		return 0, -1
	case len(a) > len(b):
		return 0, 1
	}
	return 0, 0
}
