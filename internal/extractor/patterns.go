package extractor

import (
	"regexp"
	"strings"
	"unicode"
)

// phoneRegexp matches phone-shaped digit runs with optional country code
// and common separators. Deliberately loose: over-detection costs a
// pseudonym, under-detection leaks a number.
var phoneRegexp = regexp.MustCompile(
	`(?:\+?\d{1,4})?[\s\-.]?\(?\d{1,4}\)?[\s\-.]?\d{2,4}[\s\-.]?\d{2,4}`,
)

// phoneMentions finds phone-number-shaped spans.
func phoneMentions(text string) []Mention {
	var out []Mention
	for _, m := range phoneRegexp.FindAllString(text, -1) {
		out = append(out, Mention{Text: m, Label: LabelPhoneNumber})
	}
	return out
}

// passwordSymbols is the symbol alphabet a password-shaped token must
// draw at least one character from.
const passwordSymbols = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

// passwordMentions finds password-shaped tokens: whitespace-delimited
// tokens of length >= 5 containing at least one letter, one digit and
// one symbol. RE2 has no lookarounds, so the original lookahead-based
// pattern is expressed as a token scan with content checks.
func passwordMentions(text string) []Mention {
	var out []Mention
	for _, tok := range strings.Fields(text) {
		if len(tok) < 5 {
			continue
		}
		var hasLetter, hasDigit, hasSymbol bool
		for _, r := range tok {
			switch {
			case unicode.IsLetter(r):
				hasLetter = true
			case unicode.IsDigit(r):
				hasDigit = true
			case strings.ContainsRune(passwordSymbols, r):
				hasSymbol = true
			}
		}
		if hasLetter && hasDigit && hasSymbol {
			out = append(out, Mention{Text: tok, Label: LabelPassword})
		}
	}
	return out
}

// defaultRules are the built-in detector rules, used when no rule file
// is present. Order matters: rules run (and emit mentions) in slice order.
func defaultRules() []Rule {
	return []Rule{
		{Label: LabelCreditCard, Pattern: `\b\d{16}\b`},
		{Label: LabelSSN, Pattern: `\b\d{3}-\d{2}-\d{4}\b`},
		{Label: LabelAccount, Pattern: `\b\d{10}\b`},
		{Label: LabelEmail, Pattern: `\b[\w.\-]+@[\w.\-]+\.\w+\b`},
		{Label: LabelAge, Pattern: `(?i)\b\d+\s+(?:yrs?|old)\b`},
	}
}
