// accolade/pkg/event/event.go

// Package event holds the message model shared by every rule component.
package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Event is one notification from the bus. Rule components treat it as
// read-only.
type Event struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Timestamp time.Time         `json:"timestamp"`
	Body      map[string]any    `json:"body"`
	Headers   map[string]string `json:"headers,omitempty"`
	AgentName string            `json:"agent_name,omitempty"`
	Usernames []string          `json:"usernames,omitempty"`
	Packages  []string          `json:"packages,omitempty"`
}

// Decode parses a JSON payload into an Event.
func Decode(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}
	if ev.Topic == "" {
		return nil, fmt.Errorf("invalid event payload: missing topic")
	}
	if ev.Body == nil {
		ev.Body = map[string]any{}
	}
	return &ev, nil
}

// Encode is the inverse of Decode.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Category is the fourth dot-separated segment of the topic, which is where
// the category sits in org.domain.env.category.* topics. Shorter topics have
// no category.
func (e *Event) Category() string {
	parts := strings.SplitN(e.Topic, ".", 5)
	if len(parts) < 4 {
		return ""
	}
	return parts[3]
}

// Binding is the value an expression sees for a "message" argument.
func (e *Event) Binding() map[string]any {
	headers := make(map[string]any, len(e.Headers))
	for k, v := range e.Headers {
		headers[k] = v
	}
	body := e.Body
	if body == nil {
		body = map[string]any{}
	}

	var agent any
	if e.AgentName != "" {
		agent = e.AgentName
	}

	return map[string]any{
		"id":         e.ID,
		"topic":      e.Topic,
		"timestamp":  e.Timestamp,
		"body":       body,
		"headers":    headers,
		"agent_name": agent,
		"usernames":  stringsToAny(e.Usernames),
		"packages":   stringsToAny(e.Packages),
	}
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
