package types

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxTextLength bounds candidate-text, hr-text and hr-note payloads
const MaxTextLength = 4000

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidID checks interview, candidate and HR user identifiers
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 64 {
		return false
	}
	return idRegex.MatchString(id)
}

// ValidateText trims and bounds a free-text payload
func ValidateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return "", ErrTextTooLong
	}
	return text, nil
}

// Validate checks the identity fields of join-interview
func (p *JoinInterviewPayload) Validate() error {
	if !IsValidID(p.InterviewID) {
		return fmt.Errorf("%w: interviewId: %v", ErrValidation, ErrInvalidID)
	}
	if !IsValidID(p.CandidateID) {
		return fmt.Errorf("%w: candidateId: %v", ErrValidation, ErrInvalidID)
	}
	if p.Token == "" {
		return fmt.Errorf("%w: token is required", ErrValidation)
	}
	return nil
}

// Validate checks hr-join
func (p *HRJoinPayload) Validate() error {
	if !IsValidID(p.InterviewID) || !IsValidID(p.HRUserID) {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, ErrInvalidID)
	}
	p.HRName = strings.TrimSpace(p.HRName)
	if p.HRName == "" {
		p.HRName = p.HRUserID
	}
	if utf8.RuneCountInString(p.HRName) > 100 {
		return fmt.Errorf("%w: hrName too long", ErrInvalidPayload)
	}
	return nil
}
