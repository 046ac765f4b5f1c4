package logstf

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrInvalidQuery = errors.New("invalid log search query")
	ErrRequest      = errors.New("failed to perform request")
)

// RemoteServiceError is returned for any non 200 response from logs.tf.
type RemoteServiceError struct {
	StatusCode int
	Body       string
}

func (e *RemoteServiceError) Error() string {
	return fmt.Sprintf("logs.tf returned status %d: %s", e.StatusCode, e.Body)
}

// DecodeError is returned when a match document is not valid JSON, or is not shaped like one.
type DecodeError struct {
	LogID int64
	Err   error
}

func (e *DecodeError) Error() string {
	return "failed to decode log " + strconv.FormatInt(e.LogID, 10) + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
