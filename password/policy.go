package password

import "unicode"

// Policy is the acceptance rule applied before hashing: a minimum length
// and at least MinClasses of the four character classes (upper, lower,
// digit, special).
type Policy struct {
	MinLength  int
	MinClasses int
}

// DefaultPolicy matches the shell's interactive password prompt.
func DefaultPolicy() Policy {
	return Policy{MinLength: 8, MinClasses: 3}
}

// Check reports whether the candidate satisfies the policy.
func (p Policy) Check(candidate string) bool {
	if len(candidate) < p.MinLength {
		return false
	}

	var upper, lower, digit, special bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}

	classes := 0
	for _, present := range []bool{upper, lower, digit, special} {
		if present {
			classes++
		}
	}
	return classes >= p.MinClasses
}
