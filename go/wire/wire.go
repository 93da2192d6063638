// Package wire moves tasks across the local/remote boundary. Messages are
// JSON objects discriminated by a task_type field; concrete types register
// a constructor so that payloads received from the workflow engine can be
// rebuilt without the receiver knowing the full task set.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownTaskType reports a task_type with no registered constructor.
var ErrUnknownTaskType = errors.New("unknown task type")

// Message is a task in its wire form.
type Message interface {
	TaskType() string
}

var (
	mu       sync.RWMutex
	registry = make(map[string]func() Message)
)

// Register installs a constructor for a task_type. Later registrations of
// the same type replace earlier ones.
func Register(taskType string, build func() Message) {
	mu.Lock()
	defer mu.Unlock()
	registry[taskType] = build
}

// New builds an empty message of the given task_type.
func New(taskType string) (Message, error) {
	mu.RLock()
	var build, ok = registry[taskType]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTaskType, taskType)
	}
	return build(), nil
}

// FromJSON rebuilds a message from its JSON form, dispatching on task_type.
func FromJSON(data []byte) (Message, error) {
	var probe struct {
		TaskType string `json:"task_type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decoding task envelope: %w", err)
	}
	var msg, err = New(probe.TaskType)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", probe.TaskType, err)
	}
	return msg, nil
}

// FromMap rebuilds a message from its map form, as read back from the
// task store.
func FromMap(m map[string]interface{}) (Message, error) {
	var data, err = json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding task envelope: %w", err)
	}
	return FromJSON(data)
}

// ToMap flattens a message to its map form for the task store. The
// message's own MarshalJSON governs which fields appear.
func ToMap(msg Message) (map[string]interface{}, error) {
	var data, err = json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", msg.TaskType(), err)
	}
	var m map[string]interface{}
	if err = json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", msg.TaskType(), err)
	}
	return m, nil
}
