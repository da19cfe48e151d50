package assistant

import (
	"errors"

	"memodraft/internal/quota"
)

var (
	ErrAuthRequired    = errors.New("authentication required")
	ErrNoDocuments     = errors.New("no documents uploaded")
	ErrRequestInFlight = errors.New("a request is already in progress")
	ErrNotInsertable   = errors.New("turn cannot be inserted into the memo")
	ErrEmptyInput      = errors.New("input must not be empty")
)

// QuotaExceededError is returned when the account has used up its tier.
type QuotaExceededError struct {
	Decision quota.Decision
}

func (e *QuotaExceededError) Error() string { return e.Decision.Message() }

type requestKind int

const (
	requestSection requestKind = iota
	requestChat
)

// userMessage renders err the way it is shown in the session's error slot.
func userMessage(kind requestKind, err error) string {
	var quotaErr *QuotaExceededError
	switch {
	case errors.Is(err, ErrAuthRequired):
		if kind == requestChat {
			return "You must be logged in to chat."
		}
		return "You must be logged in to generate content."
	case errors.As(err, &quotaErr):
		return quotaErr.Error()
	case errors.Is(err, ErrNoDocuments):
		if kind == requestChat {
			return "Please upload documents to chat about them."
		}
		return "Please upload at least one financial document to generate a section."
	case errors.Is(err, ErrRequestInFlight):
		return "A request is already in progress. Please wait for it to finish."
	}
	if kind == requestChat {
		return "Failed to generate chat response: " + err.Error()
	}
	return "Failed to generate suggestion: " + err.Error()
}
