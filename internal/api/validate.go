package api

import (
	"regexp"
	"unicode/utf8"
)

// maxNameLen is the maximum length for name fields (org names, hold reasons).
const maxNameLen = 200

// maxTextLen is the maximum length for long text fields (transcript text,
// synthesis utterances).
const maxTextLen = 64 * 1024

// maxBodyLen is the maximum length for outbound message bodies.
const maxBodyLen = 4096

// maxURLLen is the maximum length for URL fields.
const maxURLLen = 2048

// recipientRe validates E.164-style recipients: optional +, 3-20 digits.
var recipientRe = regexp.MustCompile(`^\+?\d{3,20}$`)

// orgIDRe validates org identifiers: slug characters, 1-64 chars.
var orgIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// validateStringLen checks that a string does not exceed maxLen runes.
// Returns an error message if invalid, empty string if OK.
func validateStringLen(field, value string, maxLen int) string {
	if utf8.RuneCountInString(value) > maxLen {
		return field + " exceeds maximum length"
	}
	return ""
}

// validateRequiredStringLen checks that a non-empty string does not exceed maxLen runes.
func validateRequiredStringLen(field, value string, maxLen int) string {
	if value == "" {
		return field + " is required"
	}
	return validateStringLen(field, value, maxLen)
}

// validateRecipient checks that a recipient looks like a dialable number.
func validateRecipient(field, value string) string {
	if value == "" {
		return field + " is required"
	}
	if !recipientRe.MatchString(value) {
		return field + " must be a phone number"
	}
	return ""
}

// validateOrgID checks an org identifier slug.
func validateOrgID(field, value string) string {
	if value == "" {
		return field + " is required"
	}
	if !orgIDRe.MatchString(value) {
		return field + " must be a lowercase slug (max 64 chars)"
	}
	return ""
}

// containsControlChars checks whether a string has control characters
// (except common whitespace like \n, \r, \t).
func containsControlChars(s string) bool {
	for _, r := range s {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			return true
		}
	}
	return false
}

// validateNoControlChars rejects strings with control characters.
func validateNoControlChars(field, value string) string {
	if containsControlChars(value) {
		return field + " contains invalid characters"
	}
	return ""
}
