package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrStageNotFound is returned when a stage id is missing from the graph.
// Reaching it at runtime means the graph declaration is broken.
var ErrStageNotFound = errors.New("stage not found")

// ErrUnknownQuestion is returned when a question id is missing from its stage.
var ErrUnknownQuestion = errors.New("unknown question")

// ErrNoStructuredReply is returned when a backend reply carries no structured object.
var ErrNoStructuredReply = errors.New("reply is not structured")

// ErrNothingInferred is returned when keyword analysis finds nothing usable in a reply.
var ErrNothingInferred = errors.New("nothing inferred from reply")

// ErrEmptyUtterance is returned when a turn is submitted without text.
var ErrEmptyUtterance = errors.New("empty utterance")
