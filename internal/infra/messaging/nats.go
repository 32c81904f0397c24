package messaging

import (
	"context"
	"errors"
	"strings"

	"github.com/daffahilmyf/go-imagegen/internal/config"
	"github.com/nats-io/nats.go"
)

type NATSClient struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	cfg  config.NATS
}

func NewNATS(ctx context.Context, cfg config.NATS) (*NATSClient, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	if cfg.Stream == "" || cfg.RequestSubject == "" || cfg.EventSubject == "" {
		return nil, errors.New("nats: stream, request_subject and event_subject are required")
	}

	conn, err := nats.Connect(cfg.URL, nats.Name("imagegen"))
	if err != nil {
		return nil, err
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ensureStream(ctx, js, cfg); err != nil {
		conn.Close()
		return nil, err
	}

	return &NATSClient{conn: conn, js: js, cfg: cfg}, nil
}

func (c *NATSClient) Close() {
	if c == nil || c.conn == nil {
		return
	}
	c.conn.Close()
}

func (c *NATSClient) JetStream() nats.JetStreamContext {
	if c == nil {
		return nil
	}
	return c.js
}

// PublishRequest enqueues a generation request; the message id doubles as the
// JetStream dedup id so a retried publish is stored once.
func (c *NATSClient) PublishRequest(ctx context.Context, messageID string, payload []byte) error {
	if c == nil {
		return errors.New("nats: client not configured")
	}
	return c.Publish(ctx, c.cfg.RequestSubject, payload, messageID)
}

// EventSubject maps a domain event type to its subject under the event prefix.
func (c *NATSClient) EventSubject(eventType string) string {
	return EventSubject(c.cfg.EventSubject, eventType)
}

func EventSubject(prefix, eventType string) string {
	return strings.TrimSuffix(prefix, ".") + "." + eventType
}

func (c *NATSClient) Publish(ctx context.Context, subject string, payload []byte, msgID string) error {
	if c == nil {
		return nil
	}
	if c.js == nil {
		return errors.New("nats: jetstream not initialized")
	}
	msg := nats.NewMsg(subject)
	msg.Data = payload
	if msgID != "" {
		msg.Header.Set(nats.MsgIdHdr, msgID)
	}
	_, err := c.js.PublishMsg(msg, nats.Context(ctx))
	return err
}

// ObjectStore binds the named bucket, creating it on first use.
func (c *NATSClient) ObjectStore(bucket string) (nats.ObjectStore, error) {
	if c == nil || c.js == nil {
		return nil, errors.New("nats: jetstream not initialized")
	}
	store, err := c.js.ObjectStore(bucket)
	if err == nil {
		return store, nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return nil, err
	}
	return c.js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:  bucket,
		Storage: nats.FileStorage,
	})
}

func streamSubjects(cfg config.NATS) []string {
	subjects := []string{cfg.RequestSubject, strings.TrimSuffix(cfg.EventSubject, ".") + ".>"}
	if cfg.DLQSubject != "" {
		subjects = append(subjects, cfg.DLQSubject)
	}
	return subjects
}

func ensureStream(ctx context.Context, js nats.JetStreamContext, cfg config.NATS) error {
	subjects := streamSubjects(cfg)
	info, err := js.StreamInfo(cfg.Stream, nats.Context(ctx))
	if err == nil {
		if !sameSubjects(info.Config.Subjects, subjects) {
			info.Config.Subjects = subjects
			_, err = js.UpdateStream(&info.Config, nats.Context(ctx))
		}
		return err
	}

	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:       cfg.Stream,
			Subjects:   subjects,
			Storage:    nats.FileStorage,
			Retention:  nats.LimitsPolicy,
			Duplicates: dedupWindow,
		}, nats.Context(ctx))
		return err
	}
	return err
}

func sameSubjects(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		if seen[s] == 0 {
			return false
		}
		seen[s]--
	}
	for _, v := range seen {
		if v != 0 {
			return false
		}
	}
	return true
}
