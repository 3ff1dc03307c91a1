package users

import (
	"errors"
	"fmt"
)

// ErrUserNotFound is returned when a user lookup finds no matching record
var ErrUserNotFound = errors.New("user not found")

// InvalidUserIDError is returned for identifiers that are not UUIDs.
type InvalidUserIDError struct {
	UserID string
}

func (e *InvalidUserIDError) Error() string {
	return fmt.Sprintf("invalid user id %q", e.UserID)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}
