package events

import "time"

// GraphQLStart is emitted before executing a GraphQL operation.
type GraphQLStart struct {
	Query         string
	OperationName string
	OperationType string
}

// GraphQLFinish is emitted once the operation produced its result. For
// streamed results it is emitted when the stream has been set up, not when
// it ends.
type GraphQLFinish struct {
	Query         string
	OperationName string
	OperationType string
	Errors        []error
	Streamed      bool
	Duration      time.Duration
}

// StreamFinish is emitted when a streamed result has been delivered or the
// client went away.
type StreamFinish struct {
	OperationName string
	OperationType string
	Payloads      int
	Duration      time.Duration
}

// UnexpectedError is emitted for every error masked before it reaches the
// client.
type UnexpectedError struct {
	Err  error
	Path []any
}
