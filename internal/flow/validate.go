package flow

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	maxAmount       = 1_000_000
	maxSiteIDLength = 50
)

var (
	siteIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	emailPattern  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phonePattern  = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
)

// ParseAmount validates and parses a transaction amount.
func ParseAmount(input string) (float64, error) {
	amount, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil {
		return 0, invalid("Invalid amount format. Please enter a number.")
	}
	if amount <= 0 {
		return 0, invalid("Amount must be greater than 0.")
	}
	if amount > maxAmount {
		return 0, invalid("Amount exceeds the maximum limit.")
	}
	return amount, nil
}

// ValidateSiteID checks the player's betting-site account id.
func ValidateSiteID(input string) (string, error) {
	siteID := strings.TrimSpace(input)
	if siteID == "" {
		return "", invalid("Player site ID cannot be empty.")
	}
	if len(siteID) > maxSiteIDLength {
		return "", invalid("Player site ID is too long (max 50 characters).")
	}
	if !siteIDPattern.MatchString(siteID) {
		return "", invalid("Invalid player site ID. Use only letters, numbers, underscore and hyphen.")
	}
	return siteID, nil
}

// ValidateEmail checks a registration email address.
func ValidateEmail(input string) (string, error) {
	email := strings.TrimSpace(input)
	if !emailPattern.MatchString(email) {
		return "", invalid("Invalid email format.")
	}
	return email, nil
}

// ValidatePhone checks an E.164 phone number.
func ValidatePhone(input string) (string, error) {
	phone := strings.TrimSpace(input)
	if !phonePattern.MatchString(phone) {
		return "", invalid("Invalid phone format. Use the format +1234567890.")
	}
	return phone, nil
}

// MaskAccountNumber hides all but the last digits of an account number.
func MaskAccountNumber(account string) string {
	const visible = 4
	if len(account) <= visible {
		return strings.Repeat("*", len(account))
	}
	return strings.Repeat("*", len(account)-visible) + account[len(account)-visible:]
}
