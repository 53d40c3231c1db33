package quadrant

import (
	"fmt"
)

// failure classes surfaced by the fetch client and the push channel.
// the reconciliation core and the projections never return these:
// absence there is modeled as empty results.

// the request could not complete
type NetworkError struct {
	Op  string
	Err error
}

func (self *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %s", self.Op, self.Err)
}

func (self *NetworkError) Unwrap() error {
	return self.Err
}

// the payload was rejected by the collaborator
type ValidationError struct {
	Op      string
	Message string
}

func (self *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", self.Op, self.Message)
}

// activity or comment absent
type NotFoundError struct {
	Op  string
	Ref string
}

func (self *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s not found", self.Op, self.Ref)
}

// the push channel could not (re)establish
type ConnectionError struct {
	Op  string
	Err error
}

func (self *ConnectionError) Error() string {
	return fmt.Sprintf("%s: connection error: %s", self.Op, self.Err)
}

func (self *ConnectionError) Unwrap() error {
	return self.Err
}
