package identity

import (
	"errors"
	"fmt"
)

var errEmptyActorID = errors.New("identity: actor id must not be empty")

type depthExceededError struct {
	depth int
	max   int
}

func (e *depthExceededError) Error() string {
	return fmt.Sprintf("identity: context depth %d exceeds max %d", e.depth, e.max)
}
