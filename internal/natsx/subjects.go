package natsx

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidToken is returned when a subject token breaks the naming rules.
	ErrInvalidToken = errors.New("invalid subject token")
	// ErrInvalidClass is returned for a class outside AllowedClasses.
	ErrInvalidClass = errors.New("invalid subject class")
)

// Source is the first token of every subject this service publishes or
// consumes.
const Source = "bizflow"

// Subject classes.
const (
	ClassEvents   = "events"
	ClassCommands = "commands"
)

// AllowedClasses lists the classes accepted by BuildSubject.
var AllowedClasses = map[string]struct{}{
	ClassEvents:   {},
	ClassCommands: {},
}

// IsValidToken checks if a given string is a valid NATS subject token
// (lowercase alphanumeric and underscores, no dots).
func IsValidToken(token string) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '_' {
			return false
		}
	}
	return true
}

// BuildSubject constructs source.class.typ[.id]. Empty id is omitted.
func BuildSubject(source, class, typ, id string) (string, error) {
	if !IsValidToken(source) {
		return "", fmt.Errorf("invalid source token %q: %w", source, ErrInvalidToken)
	}
	if _, ok := AllowedClasses[class]; !ok {
		return "", fmt.Errorf("class %q is not allowed: %w", class, ErrInvalidClass)
	}
	if !IsValidToken(typ) {
		return "", fmt.Errorf("invalid type token %q: %w", typ, ErrInvalidToken)
	}

	subject := source + "." + class + "." + typ
	if id != "" {
		if !IsValidToken(id) {
			return "", fmt.Errorf("invalid id token %q: %w", id, ErrInvalidToken)
		}
		subject += "." + id
	}
	return subject, nil
}

// EventSubject returns the subject an emitter publishes a trigger event of
// the given type on, e.g. bizflow.events.contact_created.
func EventSubject(triggerType string) (string, error) {
	return BuildSubject(Source, ClassEvents, strings.ToLower(triggerType), "")
}

// CommandSubject returns the outbound command subject for a delivery
// channel, e.g. bizflow.commands.email.
func CommandSubject(channel string) (string, error) {
	return BuildSubject(Source, ClassCommands, channel, "")
}

// EventsWildcard matches every event subject.
const EventsWildcard = Source + "." + ClassEvents + ".>"
