package services

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies wall time to every command
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time in UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Actor is the explicit call context of a command: who is calling and with which roles
type Actor struct {
	UserID     uuid.UUID
	Roles      []string
	BusinessID *uuid.UUID
}

// HasRole reports whether the actor carries role
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// SystemActor is used by the coordinator for follow-up commands
var SystemActor = Actor{Roles: []string{"system"}}

func (a Actor) String() string {
	if a.UserID == uuid.Nil {
		return "system"
	}
	return a.UserID.String()
}
