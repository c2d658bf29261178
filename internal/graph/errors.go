package graph

import (
	"errors"
	"fmt"
)

// GraphError represents a structural precondition violation.
//
// Structural errors are fatal to the operation that detected them (a compile,
// a flatten, a decode) and never to the process.
type GraphError struct {
	// Code identifies the error category.
	Code GraphErrorCode

	// Message is a human-readable description.
	Message string

	// NodeID identifies the node involved, when there is one.
	NodeID string

	// LinkID identifies the link involved, when there is one.
	LinkID int64
}

// GraphErrorCode categorizes structural errors.
type GraphErrorCode string

const (
	// ErrCodeDanglingLink indicates a link references a node id absent from the repository.
	ErrCodeDanglingLink GraphErrorCode = "DANGLING_LINK"

	// ErrCodeMissingLink indicates a subquery has no owning link.
	ErrCodeMissingLink GraphErrorCode = "MISSING_LINK"

	// ErrCodeInvalidSide indicates addOutlink was called with an unknown side.
	ErrCodeInvalidSide GraphErrorCode = "INVALID_SIDE"

	// ErrCodeUnknownNode indicates an operation referenced a node not in the repository.
	ErrCodeUnknownNode GraphErrorCode = "UNKNOWN_NODE"

	// ErrCodeUnknownConstraint indicates a serialized subquery carries an unregistered tag.
	ErrCodeUnknownConstraint GraphErrorCode = "UNKNOWN_CONSTRAINT"

	// ErrCodeEmptyGraph indicates a compile was requested for a graph without nodes.
	ErrCodeEmptyGraph GraphErrorCode = "EMPTY_GRAPH"
)

// Error implements the error interface.
func (e *GraphError) Error() string {
	switch {
	case e.NodeID != "" && e.LinkID != 0:
		return fmt.Sprintf("%s: %s (node=%s, link=%d)", e.Code, e.Message, e.NodeID, e.LinkID)
	case e.NodeID != "":
		return fmt.Sprintf("%s: %s (node=%s)", e.Code, e.Message, e.NodeID)
	case e.LinkID != 0:
		return fmt.Sprintf("%s: %s (link=%d)", e.Code, e.Message, e.LinkID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsDanglingLink returns true if err is (or wraps) a dangling link error.
func IsDanglingLink(err error) bool {
	return hasCode(err, ErrCodeDanglingLink)
}

// IsMissingLink returns true if err is (or wraps) a missing link error.
func IsMissingLink(err error) bool {
	return hasCode(err, ErrCodeMissingLink)
}

// IsStructural returns true if err is any GraphError.
func IsStructural(err error) bool {
	var ge *GraphError
	return errors.As(err, &ge)
}

func hasCode(err error, code GraphErrorCode) bool {
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge.Code == code
	}
	return false
}

// NewDanglingLinkError creates a GraphError for a link endpoint that cannot be resolved.
func NewDanglingLinkError(linkID int64, nodeID string) *GraphError {
	return &GraphError{
		Code:    ErrCodeDanglingLink,
		Message: "link endpoint not present in repository",
		NodeID:  nodeID,
		LinkID:  linkID,
	}
}

// NewMissingLinkError creates a GraphError for a subquery without a link.
func NewMissingLinkError(subQueryID int64, nodeID string) *GraphError {
	return &GraphError{
		Code:    ErrCodeMissingLink,
		Message: fmt.Sprintf("subquery %d has no owning link", subQueryID),
		NodeID:  nodeID,
	}
}
