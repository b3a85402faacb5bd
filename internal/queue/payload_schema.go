package queue

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	// ErrUnknownAction is returned for payload actions with no registered schema.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidPayload is returned when a payload fails its action schema.
	ErrInvalidPayload = errors.New("invalid task payload")
)

// actionQueues fixes which queue consumes each action.
var actionQueues = map[string]Queue{
	"reload":            QueueMain,
	"settime":           QueueMain,
	"systemHealthCheck": QueueVideo,
	"generateVideo":     QueueVideo,
}

var loadActionSchemas = sync.OnceValues(func() (map[string]*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	schemas := make(map[string]*jsonschema.Schema, len(actionQueues))
	for action := range actionQueues {
		name := path.Join("schemas", action+".json")
		raw, err := schemaFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", name, err)
		}
		if err := compiler.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
		schema, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		schemas[action] = schema
	}
	return schemas, nil
})

// Actions lists the known payload actions in name order.
func Actions() []string {
	out := make([]string, 0, len(actionQueues))
	for action := range actionQueues {
		out = append(out, action)
	}
	sort.Strings(out)
	return out
}

// ActionQueue reports the queue that consumes action.
func ActionQueue(action string) (Queue, bool) {
	q, ok := actionQueues[action]
	return q, ok
}

// ValidatePayload checks that the payload action is known, belongs on queue
// q, and satisfies the action schema.
func ValidatePayload(q Queue, payload Payload) error {
	action := payload.Action()
	want, ok := actionQueues[action]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if want != q {
		return fmt.Errorf("%w: action %s belongs on the %s queue, not %s", ErrInvalidPayload, action, want, q)
	}

	schemas, err := loadActionSchemas()
	if err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := schemas[action].Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
