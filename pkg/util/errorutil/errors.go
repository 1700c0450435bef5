package errorutil

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Sentinels for errors.Is checks. Each DomainError built by the helpers below wraps one of them.
var (
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrForbidden            = errors.New("forbidden")
	ErrCommentRequired      = errors.New("comment required")
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrChannelUnavailable   = errors.New("channel unavailable")
	ErrChatClosed           = errors.New("chat closed")
	ErrNoAgentAssigned      = errors.New("no agent assigned")
	ErrDuplicateEdge        = errors.New("duplicate relationship")
	ErrSelfMerge            = errors.New("ticket cannot be merged into itself")
	ErrRelationshipNotFound = errors.New("relationship not found")
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func wrap(sentinel error, code, message string, status int, details map[string]any) error {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details, Err: sentinel}
}

func NewValidationError(message string, details map[string]any) error {
	return wrap(ErrValidation, "VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return wrap(ErrNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource), http.StatusNotFound, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return wrap(ErrForbidden, "FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return wrap(ErrConflict, "CONFLICT", message, http.StatusConflict, details)
}

// NewInvalidTransition reports a (from, to) pair missing from the transition table.
func NewInvalidTransition(from, to string) error {
	return wrap(ErrInvalidTransition, "INVALID_TRANSITION",
		fmt.Sprintf("cannot change status from %s to %s", from, to),
		http.StatusConflict, map[string]any{"from": from, "to": to})
}

func NewCommentRequired(from, to string) error {
	return wrap(ErrCommentRequired, "COMMENT_REQUIRED",
		fmt.Sprintf("a comment is required to change status from %s to %s", from, to),
		http.StatusUnprocessableEntity, map[string]any{"from": from, "to": to})
}

func NewTicketNotFound(id string) error {
	return wrap(ErrTicketNotFound, "TICKET_NOT_FOUND", "ticket not found", http.StatusNotFound, map[string]any{"ticket_id": id})
}

func NewChannelUnavailable(channelID, reason string) error {
	return wrap(ErrChannelUnavailable, "CHANNEL_UNAVAILABLE", "channel unavailable: "+reason,
		http.StatusBadRequest, map[string]any{"channel_id": channelID})
}

func NewChatClosed(chatID string) error {
	return wrap(ErrChatClosed, "CHAT_CLOSED", "chat session is closed", http.StatusConflict, map[string]any{"chat_id": chatID})
}

func NewNoAgentAssigned(chatID string) error {
	return wrap(ErrNoAgentAssigned, "NO_AGENT_ASSIGNED", "no agent assigned to chat", http.StatusConflict, map[string]any{"chat_id": chatID})
}

func NewDuplicateEdge(parentID, childID, relType string) error {
	return wrap(ErrDuplicateEdge, "DUPLICATE_EDGE", "relationship already exists", http.StatusConflict,
		map[string]any{"parent_ticket_id": parentID, "child_ticket_id": childID, "relationship_type": relType})
}

func NewSelfMerge(id string) error {
	return wrap(ErrSelfMerge, "SELF_MERGE", "ticket cannot be merged into itself", http.StatusBadRequest, map[string]any{"ticket_id": id})
}

func NewRelationshipNotFound(parentID, childID string) error {
	return wrap(ErrRelationshipNotFound, "RELATIONSHIP_NOT_FOUND", "relationship not found", http.StatusNotFound,
		map[string]any{"parent_ticket_id": parentID, "child_ticket_id": childID})
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
