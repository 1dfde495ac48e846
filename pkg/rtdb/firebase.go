package rtdb

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"firebase.google.com/go/v4/errorutils"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

type FirebaseConfig struct {
	DatabaseURL string
	// ServiceAccount is the base64 encoded service account JSON.
	ServiceAccount string
	PollInterval   time.Duration
}

// NewFirebaseApp creates the Firebase app shared by the tree and push
// notifications.
func NewFirebaseApp(ctx context.Context, config FirebaseConfig) (*firebase.App, error) {
	opts := []option.ClientOption{}

	if config.ServiceAccount != "" {
		decodedKey, err := base64.StdEncoding.DecodeString(config.ServiceAccount)
		if err != nil {
			return nil, fmt.Errorf("decode firebase service account: %w", err)
		}

		opts = append(opts, option.WithCredentialsJSON(decodedKey))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: config.DatabaseURL}, opts...)
	if err != nil {
		return nil, err
	}

	return app, nil
}

// FirebaseTree is a Tree on top of the Firebase Realtime Database admin API.
// The admin SDK has no streaming listener, so subscriptions poll with ETags
// and only deliver when the value changed.
type FirebaseTree struct {
	client       *db.Client
	pollInterval time.Duration

	mutex         sync.Mutex
	nextToken     Token
	subscriptions map[Token]context.CancelFunc
	watchers      map[Token]func(bool)
	connected     *bool
}

func NewFirebaseTree(ctx context.Context, app *firebase.App, pollInterval time.Duration) (*FirebaseTree, error) {
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("open realtime database: %w", err)
	}

	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	return &FirebaseTree{
		client:        client,
		pollInterval:  pollInterval,
		subscriptions: map[Token]context.CancelFunc{},
		watchers:      map[Token]func(bool){},
	}, nil
}

func (t *FirebaseTree) Get(ctx context.Context, path string, v any) error {
	return t.client.NewRef(path).Get(ctx, v)
}

func (t *FirebaseTree) Set(ctx context.Context, path string, v any) error {
	return t.client.NewRef(path).Set(ctx, v)
}

func (t *FirebaseTree) Update(ctx context.Context, path string, values map[string]any) error {
	return t.client.NewRef(path).Update(ctx, values)
}

func (t *FirebaseTree) Push(ctx context.Context, path string, v any) (string, error) {
	ref, err := t.client.NewRef(path).Push(ctx, v)
	if err != nil {
		return "", err
	}

	return ref.Key, nil
}

func (t *FirebaseTree) Delete(ctx context.Context, path string) error {
	return t.client.NewRef(path).Delete(ctx)
}

func (t *FirebaseTree) Subscribe(path string, onNext func(Value), onError func(error)) (Token, error) {
	ctx, cancel := context.WithCancel(context.Background())

	t.mutex.Lock()
	t.nextToken++
	token := t.nextToken
	t.subscriptions[token] = cancel
	t.mutex.Unlock()

	go t.poll(ctx, token, path, onNext, onError)

	return token, nil
}

func (t *FirebaseTree) poll(ctx context.Context, token Token, path string, onNext func(Value), onError func(error)) {
	ref := t.client.NewRef(path)

	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = 0

	etag := ""

	for {
		var value json.RawMessage
		var changed bool
		var err error

		if etag == "" {
			etag, err = ref.GetWithETag(ctx, &value)
			changed = err == nil
		} else {
			var newETag string
			changed, newETag, err = ref.GetIfChanged(ctx, etag, &value)
			if err == nil {
				etag = newETag
			}
		}

		if ctx.Err() != nil {
			return
		}

		wait := t.pollInterval

		if err != nil {
			if isFatal(err) {
				log.Error().Err(err).Str("path", path).Msg("Realtime database rejected subscription")
				t.Unsubscribe(token)
				onError(err)
				return
			}

			log.Warn().Err(err).Str("path", path).Msg("Failed to poll realtime database")
			t.setConnected(false)
			wait = retry.NextBackOff()
		} else {
			retry.Reset()
			t.setConnected(true)

			if changed {
				if len(value) == 0 {
					value = json.RawMessage("null")
				}
				onNext(value)
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func isFatal(err error) bool {
	return errorutils.IsPermissionDenied(err) || errorutils.IsUnauthenticated(err) || errors.Is(err, context.Canceled)
}

func (t *FirebaseTree) Unsubscribe(token Token) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if cancel, ok := t.subscriptions[token]; ok {
		cancel()
		delete(t.subscriptions, token)
	}

	delete(t.watchers, token)
}

func (t *FirebaseTree) WatchConnection(fn func(connected bool)) Token {
	t.mutex.Lock()
	t.nextToken++
	token := t.nextToken
	t.watchers[token] = fn
	connected := t.connected
	t.mutex.Unlock()

	if connected != nil {
		fn(*connected)
	}

	return token
}

func (t *FirebaseTree) setConnected(connected bool) {
	t.mutex.Lock()
	if t.connected != nil && *t.connected == connected {
		t.mutex.Unlock()
		return
	}
	t.connected = &connected

	watchers := []func(bool){}
	for _, watcher := range t.watchers {
		watchers = append(watchers, watcher)
	}
	t.mutex.Unlock()

	for _, watcher := range watchers {
		watcher(connected)
	}
}

func (t *FirebaseTree) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for token, cancel := range t.subscriptions {
		cancel()
		delete(t.subscriptions, token)
	}
	t.watchers = map[Token]func(bool){}

	return nil
}
