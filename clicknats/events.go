package clicknats

import (
	"encoding/json"

	"github.com/ryanhamamura/clicker/clickserver"
)

// Publish JSON-marshals msg and publishes it to subject.
func Publish[T any](ps PubSub, subject string, msg T) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return ps.Publish(subject, data)
}

// Subscribe decodes each message as T. Messages that do not decode are
// dropped.
func Subscribe[T any](ps PubSub, subject string, handler func(T)) (Subscription, error) {
	return ps.Subscribe(subject, func(data []byte) {
		var msg T
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		handler(msg)
	})
}

// WatchClicks calls fn for every counter change the click service publishes.
func WatchClicks(ps PubSub, fn func(clickserver.Event)) (Subscription, error) {
	return Subscribe(ps, clickserver.Subject, fn)
}
