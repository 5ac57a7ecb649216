package validator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/queuekit/pkg/validator"
)

func TestValidEmail(t *testing.T) {
	t.Parallel()

	t.Run("valid emails", func(t *testing.T) {
		t.Parallel()
		valid := []string{
			"test@example.com",
			"user.name@domain.co.uk",
			"user+tag@example.org",
			"Support <support@example.com>",
			"email@example-one.com",
		}
		for _, email := range valid {
			assert.NoError(t, validator.Apply(validator.ValidEmail("email", email)), "should be valid: %s", email)
		}
	})

	t.Run("invalid emails", func(t *testing.T) {
		t.Parallel()
		invalid := []string{
			"",
			"   ",
			"plainaddress",
			"@missingdomain.com",
			"missing@.com",
			"missing@domain",
			"email@domain..com",
		}
		for _, email := range invalid {
			assert.Error(t, validator.Apply(validator.ValidEmail("email", email)), "should be invalid: %s", email)
		}
	})
}

func TestValidEmails(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validator.Apply(validator.ValidEmails("to", nil)))
	assert.NoError(t, validator.Apply(validator.ValidEmails("to", []string{"a@example.com", "b@example.com"})))
	assert.Error(t, validator.Apply(validator.ValidEmails("to", []string{"a@example.com", "nope"})))
}

func TestRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rule validator.Rule
		ok   bool
	}{
		{"required set", validator.Required("f", "x"), true},
		{"required blank", validator.Required("f", " \t"), false},
		{"slice set", validator.RequiredSlice("f", []string{"a"}), true},
		{"slice empty", validator.RequiredSlice[string]("f", nil), false},
		{"max len ok", validator.MaxLen("f", "abc", 3), true},
		{"max len exceeded", validator.MaxLen("f", "abcd", 3), false},
		{"range low", validator.Range("f", -1, 0, 10), false},
		{"range edge", validator.Range("f", 10, 0, 10), true},
		{"when skipped", validator.When(false, validator.Required("f", "")), true},
		{"when applied", validator.When(true, validator.Required("f", "")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.ok, tt.rule.Check())
		})
	}
}
