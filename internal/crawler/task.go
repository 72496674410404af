package crawler

import (
	"encoding/json"
	"fmt"
	"strings"
)

// taskEnvelope accepts both the queue wire key and the ingress key.
type taskEnvelope struct {
	PageURL      string `json:"page_url"`
	PageURLCamel string `json:"pageUrl"`
}

// DecodeTask parses a raw task payload. A payload that is not JSON or carries
// no URL yields ErrMalformedTask.
func DecodeTask(payload []byte) (Task, error) {
	var env taskEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Task{}, fmt.Errorf("%w: %w", ErrMalformedTask, err)
	}
	pageURL := strings.TrimSpace(env.PageURL)
	if pageURL == "" {
		pageURL = strings.TrimSpace(env.PageURLCamel)
	}
	if pageURL == "" {
		return Task{}, fmt.Errorf("%w: page_url is missing", ErrMalformedTask)
	}
	return Task{PageURL: pageURL}, nil
}

// EncodeTask renders the queue wire form of a task.
func EncodeTask(task Task) ([]byte, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}
	return data, nil
}
