package server

import (
	"encoding/json"
	"fmt"
)

// Error is the JSON body of every failed request.
type Error struct {
	Message string   `json:"message,omitempty"`
	Err     []string `json:"err,omitempty"`
}

func NewError(message string, errs ...error) *Error {
	return &Error{
		Message: message,
		Err: func() []string {
			var msgs []string

			for _, err := range errs {
				if err != nil {
					msgs = append(msgs, err.Error())
				}
			}

			return msgs
		}(),
	}
}

// Error renders the body as JSON so a logged error matches what the client saw.
func (e *Error) Error() string {
	//nolint:errchkjson
	data, _ := json.Marshal(e)
	return string(data)
}

func ErrServerFailedToStart(name string, err error) error {
	return fmt.Errorf("server %s failed to start: %w", name, err)
}

func ErrServerFailedToStop(name string, err error) error {
	return fmt.Errorf("server %s failed to stop: %w", name, err)
}
