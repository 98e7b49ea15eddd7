package verification

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"

	errx "github.com/pricewatch/intake-core/internal/core/error"
	"github.com/pricewatch/intake-core/internal/intake/model"
	logx "github.com/pricewatch/intake-core/pkg/logger"
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// NormalizePhone parses a user-entered number and formats it as E.164.
// Numbers without a country prefix are read in defaultRegion. Any number of a
// possible length for its country is accepted; numbering-plan validity is
// only logged.
func NormalizePhone(input, defaultRegion string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errx.Validation("phone number is required",
			errx.FieldError{Field: model.FieldPhone, Message: "Please enter your phone number."})
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil || !phonenumbers.IsPossibleNumber(number) {
		return "", invalidPhone()
	}
	formatted := phonenumbers.Format(number, phonenumbers.E164)
	if !e164.MatchString(formatted) {
		return "", invalidPhone()
	}
	if !phonenumbers.IsValidNumber(number) {
		logx.Debug().Str("phone", logx.MaskPhone(formatted)).Msg("phone number outside known numbering ranges")
	}
	return formatted, nil
}

func invalidPhone() error {
	return errx.Validation("invalid phone number",
		errx.FieldError{Field: model.FieldPhone, Message: "That doesn't look like a valid phone number."})
}
