// Package password holds the signup password policy and the bcrypt hasher.
package password

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	liststr "accounts/pkg/platform/strings"
)

// MaxBytes is bcrypt's input limit; longer passwords would be silently
// truncated, so the policy rejects them.
const MaxBytes = 72

// DefaultMinLength applies when no length is configured.
const DefaultMinLength = 8

// similarityThreshold is the ratio at or above which a password counts as a
// copy of a user attribute.
const similarityThreshold = 0.7

//go:embed common.txt
var commonList string

var attributeSplit = regexp.MustCompile(`\W+`)

// Attributes are the user values a password must not resemble.
type Attributes struct {
	Username  string
	FirstName string
	LastName  string
	Email     string
}

// Policy checks password strength. The zero value is not usable; call
// NewPolicy.
type Policy struct {
	minLength int
	common    map[string]struct{}
}

func NewPolicy(minLength int) *Policy {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	words := liststr.Lines(commonList)
	common := make(map[string]struct{}, len(words))
	for _, w := range words {
		common[w] = struct{}{}
	}
	return &Policy{minLength: minLength, common: common}
}

// Validate returns one message per violated rule, or nil when the password
// is acceptable.
func (p *Policy) Validate(pw string, attrs Attributes) []string {
	var problems []string
	if len(pw) > MaxBytes {
		// Nothing else is meaningful for a value bcrypt cannot store.
		return []string{fmt.Sprintf("This password is too long. It must contain at most %d bytes.", MaxBytes)}
	}
	if n := len([]rune(pw)); n < p.minLength {
		problems = append(problems, fmt.Sprintf(
			"This password is too short. It must contain at least %d characters.", p.minLength))
	}
	if attr, ok := similarAttribute(pw, attrs); ok {
		problems = append(problems, fmt.Sprintf("The password is too similar to the %s.", attr))
	}
	if _, ok := p.common[strings.ToLower(strings.TrimSpace(pw))]; ok {
		problems = append(problems, "This password is too common.")
	}
	if isNumeric(pw) {
		problems = append(problems, "This password is entirely numeric.")
	}
	return problems
}

// HelpText lists the rules for display next to the password field.
func (p *Policy) HelpText() []string {
	return []string{
		"Your password can't be too similar to your other personal information.",
		fmt.Sprintf("Your password must contain at least %d characters.", p.minLength),
		"Your password can't be a commonly used password.",
		"Your password can't be entirely numeric.",
	}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func similarAttribute(pw string, attrs Attributes) (string, bool) {
	candidates := []struct {
		name  string
		value string
	}{
		{"username", attrs.Username},
		{"first name", attrs.FirstName},
		{"last name", attrs.LastName},
		{"email address", attrs.Email},
	}
	lowered := strings.ToLower(pw)
	for _, c := range candidates {
		value := strings.ToLower(c.value)
		if value == "" {
			continue
		}
		parts := append([]string{value}, attributeSplit.Split(value, -1)...)
		for _, part := range parts {
			if part == "" {
				continue
			}
			if similarity(lowered, part) >= similarityThreshold {
				return c.name, true
			}
		}
	}
	return "", false
}

// similarity is 2*LCS/(len(a)+len(b)) over runes, the same measure as
// difflib's ratio for inputs without junk.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 0
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			switch {
			case ra[i-1] == rb[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return 2 * float64(prev[len(rb)]) / float64(total)
}
