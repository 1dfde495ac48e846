package rtdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Value is the JSON encoding of a subtree. A missing node is "null".
type Value = json.RawMessage

// Token identifies one subscription or connection watcher.
type Token uint64

// Tree is a realtime key-value tree addressed by slash separated paths.
type Tree interface {
	Get(ctx context.Context, path string, v any) error
	Set(ctx context.Context, path string, v any) error
	Update(ctx context.Context, path string, values map[string]any) error
	Push(ctx context.Context, path string, v any) (string, error)
	Delete(ctx context.Context, path string) error

	// Subscribe delivers the whole value at path first and then again after
	// every change, in order. Callbacks may run on any goroutine. After
	// onError has been called the subscription is finished.
	Subscribe(path string, onNext func(Value), onError func(error)) (Token, error)
	Unsubscribe(token Token)

	// WatchConnection reports every change of the connection state.
	WatchConnection(fn func(connected bool)) Token

	Close() error
}

var ErrNotContainer = errors.New("value is neither an object nor an array")

// Children splits a node into its child values by key. Nodes whose keys are
// mostly sequential integers come back from the database as arrays, those
// are keyed by index. Null children are left out. A null node has no
// children.
func Children(value Value) (map[string]Value, error) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '{':
		var object map[string]Value
		if err := json.Unmarshal(trimmed, &object); err != nil {
			return nil, err
		}

		children := map[string]Value{}
		for key, child := range object {
			if !isNull(child) {
				children[key] = child
			}
		}
		return children, nil
	case '[':
		var array []Value
		if err := json.Unmarshal(trimmed, &array); err != nil {
			return nil, err
		}

		children := map[string]Value{}
		for index, child := range array {
			if !isNull(child) {
				children[strconv.Itoa(index)] = child
			}
		}
		return children, nil
	default:
		return nil, ErrNotContainer
	}
}

// CompareKeys orders numeric keys by value and everything else as text,
// numbers first.
func CompareKeys(a string, b string) int {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)

	switch {
	case aerr == nil && berr == nil:
		return ai - bi
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func isNull(value Value) bool {
	trimmed := bytes.TrimSpace(value)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func splitPath(path string) []string {
	segments := []string{}

	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}

	return segments
}

func JoinPath(segments ...string) string {
	parts := []string{}
	for _, segment := range segments {
		parts = append(parts, splitPath(segment)...)
	}

	return strings.Join(parts, "/")
}
