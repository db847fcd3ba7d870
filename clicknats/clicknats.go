// Package clicknats carries click change events over an embedded NATS
// server with JetStream, so counters can be watched and replayed.
package clicknats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/delaneyj/toolbelt/embeddednats"
	"github.com/nats-io/nats.go"
)

// StreamName is the JetStream stream that retains change events.
const StreamName = "CLICKS"

// PubSub is the messaging surface the click service needs. NATS implements
// it; tests use an in-memory fake.
type PubSub interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte)) (Subscription, error)
	Close() error
}

type Subscription interface {
	Unsubscribe() error
}

// NATS implements PubSub using an embedded NATS server with JetStream.
type NATS struct {
	server *embeddednats.Server
	nc     *nats.Conn
	js     nats.JetStreamContext
}

// New starts an embedded NATS server storing data in dataDir. The server
// shuts down when ctx is cancelled.
func New(ctx context.Context, dataDir string) (*NATS, error) {
	ns, err := embeddednats.New(ctx, embeddednats.WithDirectory(dataDir))
	if err != nil {
		return nil, fmt.Errorf("clicknats: start server: %w", err)
	}
	ns.WaitForServer()

	nc, err := ns.Client()
	if err != nil {
		ns.Close()
		return nil, fmt.Errorf("clicknats: connect client: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		ns.Close()
		return nil, fmt.Errorf("clicknats: init jetstream: %w", err)
	}

	return &NATS{server: ns, nc: nc, js: js}, nil
}

// EnsureStream creates the stream capturing every "clicks.>" subject.
// An existing stream is left as is.
func (n *NATS) EnsureStream(maxMsgs int64, maxAge time.Duration) error {
	_, err := n.js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"clicks.>"},
		Retention: nats.LimitsPolicy,
		MaxMsgs:   maxMsgs,
		MaxAge:    maxAge,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("clicknats: add stream: %w", err)
	}
	return nil
}

// Publish uses core NATS; JetStream records the message when a matching
// stream exists.
func (n *NATS) Publish(subject string, data []byte) error {
	return n.nc.Publish(subject, data)
}

func (n *NATS) Subscribe(subject string, handler func(data []byte)) (Subscription, error) {
	sub, err := n.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// History replays up to limit retained messages on subject, oldest first.
// It returns nothing when no stream captures subject.
func (n *NATS) History(subject string, limit int) ([][]byte, error) {
	sub, err := n.js.SubscribeSync(subject, nats.DeliverAll(), nats.AckNone())
	if errors.Is(err, nats.ErrNoMatchingStream) || errors.Is(err, nats.ErrStreamNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("clicknats: replay %s: %w", subject, err)
	}
	defer sub.Unsubscribe()

	var out [][]byte
	for len(out) < limit {
		msg, err := sub.NextMsg(100 * time.Millisecond)
		if err != nil {
			break
		}
		out = append(out, msg.Data)
	}
	return out, nil
}

// Close shuts down the client connection and embedded server.
func (n *NATS) Close() error {
	n.nc.Close()
	return n.server.Close()
}
