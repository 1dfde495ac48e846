package rtdb

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
)

type memorySubscription struct {
	path    []string
	onNext  func(Value)
	onError func(error)
}

// MemoryTree is an in-process Tree used by tests and demo runs. Callbacks run
// synchronously on the writing goroutine and must not write to the tree.
type MemoryTree struct {
	dispatch sync.Mutex
	mutex    sync.Mutex

	root any

	nextToken     Token
	pushCounter   uint64
	subscriptions map[Token]*memorySubscription
	watchers      map[Token]func(bool)
	connected     bool
}

func NewMemoryTree() *MemoryTree {
	return &MemoryTree{
		subscriptions: map[Token]*memorySubscription{},
		watchers:      map[Token]func(bool){},
		connected:     true,
	}
}

// Load replaces the whole tree with the decoded JSON document.
func (t *MemoryTree) Load(document []byte) error {
	var root any
	if err := json.Unmarshal(document, &root); err != nil {
		return fmt.Errorf("load tree: %w", err)
	}

	t.write(nil, func() { t.root = prune(root) })

	return nil
}

func (t *MemoryTree) Get(_ context.Context, path string, v any) error {
	t.mutex.Lock()
	encoded, err := json.Marshal(present(lookup(t.root, splitPath(path))))
	t.mutex.Unlock()

	if err != nil {
		return err
	}

	return json.Unmarshal(encoded, v)
}

func (t *MemoryTree) Set(_ context.Context, path string, v any) error {
	value, err := normalise(v)
	if err != nil {
		return err
	}

	segments := splitPath(path)
	t.write(segments, func() { t.root = assign(t.root, segments, value) })

	return nil
}

func (t *MemoryTree) Update(_ context.Context, path string, values map[string]any) error {
	base := splitPath(path)

	normalised := map[string]any{}
	for key, v := range values {
		value, err := normalise(v)
		if err != nil {
			return err
		}
		normalised[key] = value
	}

	t.write(base, func() {
		for _, key := range slices.Sorted(maps.Keys(normalised)) {
			t.root = assign(t.root, append(slices.Clone(base), splitPath(key)...), normalised[key])
		}
	})

	return nil
}

func (t *MemoryTree) Push(ctx context.Context, path string, v any) (string, error) {
	t.mutex.Lock()
	t.pushCounter++
	key := fmt.Sprintf("-M%018d", t.pushCounter)
	t.mutex.Unlock()

	if err := t.Set(ctx, JoinPath(path, key), v); err != nil {
		return "", err
	}

	return key, nil
}

func (t *MemoryTree) Delete(ctx context.Context, path string) error {
	return t.Set(ctx, path, nil)
}

func (t *MemoryTree) Subscribe(path string, onNext func(Value), onError func(error)) (Token, error) {
	t.dispatch.Lock()
	defer t.dispatch.Unlock()

	t.mutex.Lock()
	t.nextToken++
	token := t.nextToken
	subscription := &memorySubscription{path: splitPath(path), onNext: onNext, onError: onError}
	t.subscriptions[token] = subscription
	value := encode(lookup(t.root, subscription.path))
	t.mutex.Unlock()

	onNext(value)

	return token, nil
}

func (t *MemoryTree) Unsubscribe(token Token) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	delete(t.subscriptions, token)
	delete(t.watchers, token)
}

func (t *MemoryTree) WatchConnection(fn func(connected bool)) Token {
	t.mutex.Lock()
	t.nextToken++
	token := t.nextToken
	t.watchers[token] = fn
	connected := t.connected
	t.mutex.Unlock()

	fn(connected)

	return token
}

// SetConnected simulates the connection going up or down.
func (t *MemoryTree) SetConnected(connected bool) {
	t.mutex.Lock()
	if t.connected == connected {
		t.mutex.Unlock()
		return
	}
	t.connected = connected
	watchers := slices.Collect(maps.Values(t.watchers))
	t.mutex.Unlock()

	for _, watcher := range watchers {
		watcher(connected)
	}
}

// Fail ends every subscription at path with err.
func (t *MemoryTree) Fail(path string, err error) {
	t.dispatch.Lock()
	defer t.dispatch.Unlock()

	segments := splitPath(path)

	t.mutex.Lock()
	failed := []*memorySubscription{}
	for _, token := range slices.Sorted(maps.Keys(t.subscriptions)) {
		subscription := t.subscriptions[token]
		if slices.Equal(subscription.path, segments) {
			failed = append(failed, subscription)
			delete(t.subscriptions, token)
		}
	}
	t.mutex.Unlock()

	for _, subscription := range failed {
		subscription.onError(err)
	}
}

// Subscribers is the number of active subscriptions at path.
func (t *MemoryTree) Subscribers(path string) int {
	segments := splitPath(path)

	t.mutex.Lock()
	defer t.mutex.Unlock()

	count := 0
	for _, subscription := range t.subscriptions {
		if slices.Equal(subscription.path, segments) {
			count++
		}
	}

	return count
}

func (t *MemoryTree) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.subscriptions = map[Token]*memorySubscription{}
	t.watchers = map[Token]func(bool){}

	return nil
}

// write applies change and then notifies every subscription whose path is an
// ancestor or a descendant of written. A nil written path touches everything.
func (t *MemoryTree) write(written []string, change func()) {
	t.dispatch.Lock()
	defer t.dispatch.Unlock()

	type delivery struct {
		onNext func(Value)
		value  Value
	}

	t.mutex.Lock()
	change()

	deliveries := []delivery{}
	for _, token := range slices.Sorted(maps.Keys(t.subscriptions)) {
		subscription := t.subscriptions[token]
		if written != nil && !related(subscription.path, written) {
			continue
		}

		deliveries = append(deliveries, delivery{
			onNext: subscription.onNext,
			value:  encode(lookup(t.root, subscription.path)),
		})
	}
	t.mutex.Unlock()

	for _, d := range deliveries {
		d.onNext(d.value)
	}
}

func related(a []string, b []string) bool {
	shortest := min(len(a), len(b))
	return slices.Equal(a[:shortest], b[:shortest])
}

func lookup(node any, path []string) any {
	for _, segment := range path {
		children, ok := node.(map[string]any)
		if !ok {
			return nil
		}

		node = children[segment]
	}

	return node
}

// assign returns node with value stored at path. Nil values delete and empty
// parents disappear like they do in the hosted database.
func assign(node any, path []string, value any) any {
	if len(path) == 0 {
		return value
	}

	children, ok := node.(map[string]any)
	if !ok {
		if value == nil {
			return node
		}
		children = map[string]any{}
	}

	child := assign(children[path[0]], path[1:], value)
	if child == nil {
		delete(children, path[0])
	} else {
		children[path[0]] = child
	}

	if len(children) == 0 {
		return nil
	}

	return children
}

// normalise converts v to the generic JSON form the tree stores. Arrays are
// stored as objects keyed by index.
func normalise(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}

	var generic any
	if err := json.Unmarshal(encoded, &generic); err != nil {
		return nil, err
	}

	return prune(generic), nil
}

func prune(node any) any {
	switch typed := node.(type) {
	case map[string]any:
		for key, child := range typed {
			if pruned := prune(child); pruned == nil {
				delete(typed, key)
			} else {
				typed[key] = pruned
			}
		}
		if len(typed) == 0 {
			return nil
		}
		return typed
	case []any:
		children := map[string]any{}
		for index, child := range typed {
			if pruned := prune(child); pruned != nil {
				children[fmt.Sprint(index)] = pruned
			}
		}
		if len(children) == 0 {
			return nil
		}
		return children
	default:
		return node
	}
}

// present renders objects keyed by array indexes as arrays again, the way the
// hosted database returns them.
func present(node any) any {
	children, ok := node.(map[string]any)
	if !ok {
		return node
	}

	rendered := map[string]any{}
	highest := -1
	indexed := true

	for key, child := range children {
		rendered[key] = present(child)

		index, err := strconv.Atoi(key)
		if err != nil || index < 0 || strconv.Itoa(index) != key {
			indexed = false
			continue
		}
		highest = max(highest, index)
	}

	if !indexed || len(children)*2 <= highest+1 {
		return rendered
	}

	array := make([]any, highest+1)
	for key, child := range rendered {
		index, _ := strconv.Atoi(key)
		array[index] = child
	}

	return array
}

func encode(node any) Value {
	encoded, err := json.Marshal(present(node))
	if err != nil {
		return Value("null")
	}

	return encoded
}
