package validator

import (
	"fmt"
	"net/mail"
	"strings"
)

// Required fails for an empty or whitespace-only string.
func Required(field, value string) Rule {
	return Rule{
		Check: func() bool {
			return strings.TrimSpace(value) != ""
		},
		Error: ValidationError{Field: field, Message: "field is required"},
	}
}

// RequiredSlice fails for an empty slice.
func RequiredSlice[T any](field string, value []T) Rule {
	return Rule{
		Check: func() bool {
			return len(value) > 0
		},
		Error: ValidationError{Field: field, Message: "must contain at least one item"},
	}
}

// MaxLen fails when value is longer than max bytes.
func MaxLen(field, value string, max int) Rule {
	return Rule{
		Check: func() bool {
			return len(value) <= max
		},
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters", max)},
	}
}

// Range fails when value is outside [min, max].
func Range(field string, value, min, max int) Rule {
	return Rule{
		Check: func() bool {
			return value >= min && value <= max
		},
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be between %d and %d", min, max)},
	}
}

// ValidEmail validates an address in RFC 5322 form. A display name is
// allowed ("Support <support@example.com>").
func ValidEmail(field, value string) Rule {
	return Rule{
		Check: func() bool {
			return isEmail(value)
		},
		Error: ValidationError{Field: field, Message: "must be a valid email address"},
	}
}

// ValidEmails validates every address of a list. An empty list passes;
// combine with RequiredSlice when at least one address is needed.
func ValidEmails(field string, values []string) Rule {
	return Rule{
		Check: func() bool {
			for _, v := range values {
				if !isEmail(v) {
					return false
				}
			}
			return true
		},
		Error: ValidationError{Field: field, Message: "must contain only valid email addresses"},
	}
}

// When applies rule only if cond holds.
func When(cond bool, rule Rule) Rule {
	if cond {
		return rule
	}
	return Rule{Check: func() bool { return true }}
}

func isEmail(value string) bool {
	if strings.TrimSpace(value) == "" {
		return false
	}

	addr, err := mail.ParseAddress(value)
	if err != nil {
		return false
	}

	local, domain, ok := strings.Cut(addr.Address, "@")
	if !ok || local == "" {
		return false
	}

	// Domain must contain at least one dot and no empty labels
	if !strings.Contains(domain, ".") {
		return false
	}
	for part := range strings.SplitSeq(domain, ".") {
		if part == "" {
			return false
		}
	}
	return true
}
