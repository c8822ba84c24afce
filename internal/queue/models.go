package queue

import (
	"fmt"
	"strings"
	"time"
)

// DefaultMaxRetries is the number of failed replays after which an action is dropped.
const DefaultMaxRetries = 3

// Method is an HTTP verb that may be queued. Reads are never queued.
type Method string

const (
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodPatch  Method = "PATCH"
	MethodDelete Method = "DELETE"
)

// Methods lists the queueable verbs.
func Methods() []Method {
	return []Method{MethodPost, MethodPut, MethodPatch, MethodDelete}
}

// ParseMethod normalizes a verb and rejects anything that is not queueable.
func ParseMethod(value string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(value)))
	if !m.Valid() {
		return "", fmt.Errorf("unsupported method %q (want POST, PUT, PATCH or DELETE)", value)
	}
	return m, nil
}

// Valid reports whether m is one of the queueable verbs.
func (m Method) Valid() bool {
	switch m {
	case MethodPost, MethodPut, MethodPatch, MethodDelete:
		return true
	}
	return false
}

func (m Method) String() string { return string(m) }

// Action is a persisted record of an outbound mutation awaiting replay.
type Action struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Endpoint string `json:"endpoint"`
	Method   Method `json:"method"`
	// Payload is the serialized request body, usually JSON. It may be empty.
	Payload []byte `json:"payload,omitempty"`
	// CreatedAt is the enqueue time in epoch milliseconds.
	CreatedAt int64 `json:"created_at"`
	Attempts  int   `json:"attempts"`
}

// Created returns CreatedAt as a time.Time.
func (a Action) Created() time.Time {
	return time.UnixMilli(a.CreatedAt)
}

// Exhausted reports whether the action has used up its replay budget.
func (a Action) Exhausted(maxRetries int) bool {
	return a.Attempts >= maxRetries
}

// DeadLetter is an action removed after exhausting its retries.
type DeadLetter struct {
	Action
	DroppedAt int64  `json:"dropped_at"`
	Reason    string `json:"reason"`
}

// Outcome describes the result of recording a failed replay.
type Outcome struct {
	Attempts int
	Dropped  bool
	// Missing is set when the action was no longer in the store.
	Missing bool
}
