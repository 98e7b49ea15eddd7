package dialogue

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	errx "github.com/pricewatch/intake-core/internal/core/error"
	"github.com/pricewatch/intake-core/internal/intake/model"
)

const maxTextLen = 300

func fieldError(field, message string) error {
	return errx.Validation(message, errx.FieldError{Field: field, Message: message})
}

func parseText(field, raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", fieldError(field, "Please fill this in.")
	}
	if len(v) > maxTextLen {
		return "", fieldError(field, "That's a bit long, please shorten it.")
	}
	return v, nil
}

func parseProductURL(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", fieldError(model.FieldProductURL, "Please paste the product link.")
	}
	u, err := url.ParseRequestURI(v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fieldError(model.FieldProductURL, "That doesn't look like a full link. It should start with https://.")
	}
	return u.String(), nil
}

// parseAmount accepts "1,299", "₪999", "15%" and similar user spellings.
func parseAmount(field, raw string) (float64, error) {
	v := strings.TrimSpace(raw)
	v = strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', '%', '$', '€', '£', '₪':
			return -1
		}
		return r
	}, v)
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
		return 0, fieldError(field, "Please enter a positive number.")
	}
	return n, nil
}

func parseConsent(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "on", "yes", "checked":
		return true
	}
	return false
}

// looksLikeCode reports whether free text is a bare one-time code.
func looksLikeCode(text string) bool {
	v := strings.TrimSpace(text)
	if len(v) != model.CodeLength {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// matchChoice maps free text onto a quick reply by label or value.
func matchChoice(text string, choices []model.QuickReply) (string, bool) {
	v := strings.TrimSpace(text)
	for _, c := range choices {
		if strings.EqualFold(v, c.Value) || strings.EqualFold(v, c.Label) {
			return c.Value, true
		}
	}
	return "", false
}

// onlyFields reports whether every submitted field id is in allowed.
func onlyFields(fields map[string]string, allowed ...string) bool {
	if len(fields) == 0 {
		return false
	}
	for k := range fields {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
