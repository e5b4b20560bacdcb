package rule

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/flowkit/topicflow/errors"
	"github.com/flowkit/topicflow/natsclient"
	"github.com/flowkit/topicflow/types"
)

// HopHeader carries the derivation depth of a message. Rule-derived
// publishes increment it; messages without the header count as depth
// zero.
const HopHeader = "Tf-Hops"

// TopicToSubject maps a topic onto its bus subject under the given root.
// Topic segments use "/", subjects use ".".
func TopicToSubject(root, topic string) string {
	return root + "." + strings.ReplaceAll(topic, "/", ".")
}

// SubjectToTopic inverts TopicToSubject. Subjects outside the root are
// returned with separators converted, so foreign traffic still yields a
// usable topic string.
func SubjectToTopic(root, subject string) string {
	subject = strings.TrimPrefix(subject, root+".")
	return strings.ReplaceAll(subject, ".", "/")
}

// HopsFromHeader reads the hop count of an inbound message.
func HopsFromHeader(header nats.Header) int {
	if header == nil {
		return 0
	}
	value := header.Get(HopHeader)
	if value == "" {
		return 0
	}
	hops, err := strconv.Atoi(value)
	if err != nil || hops < 0 {
		return 0
	}
	return hops
}

// BusPublisher maps QoS and retain semantics onto the NATS bus:
// QoS 0 publishes core NATS (at-most-once), QoS 1 and 2 publish to the
// JetStream stream (at-least-once), and retained payloads are
// additionally stored in a KV bucket so late joiners can read the last
// value. Implements types.Publisher.
type BusPublisher struct {
	client   *natsclient.Client
	config   Config
	retained *natsclient.KVStore
	logger   *slog.Logger
}

// NewBusPublisher creates a publisher over the given client.
func NewBusPublisher(client *natsclient.Client, config Config) *BusPublisher {
	return &BusPublisher{
		client: client,
		config: config,
		logger: slog.Default().With("component", "bus-publisher"),
	}
}

// Initialize provisions the JetStream stream and the retained bucket.
func (p *BusPublisher) Initialize(ctx context.Context) error {
	_, err := p.client.CreateStream(ctx, jetstream.StreamConfig{
		Name:     p.config.Stream,
		Subjects: []string{p.config.TopicRoot + ".>"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return errors.Wrap(err, "publisher", "Initialize", "create event stream")
	}

	bucket, err := p.client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:  p.config.RetainedBucket,
		History: 1,
	})
	if err != nil {
		return errors.Wrap(err, "publisher", "Initialize", "create retained bucket")
	}
	p.retained = p.client.NewKVStore(bucket)
	return nil
}

// PublishEntry publishes entry.Payload to entry.Topic with the entry's
// QoS and retain semantics. hops is stamped into the message header for
// loop protection downstream.
func (p *BusPublisher) PublishEntry(ctx context.Context, entry *types.TopicEntry, hops int) error {
	subject := TopicToSubject(p.config.TopicRoot, entry.Topic)
	header := nats.Header{}
	header.Set(HopHeader, strconv.Itoa(hops))
	data := []byte(entry.Payload)

	var err error
	if entry.QoS >= 1 {
		err = p.client.PublishToStream(ctx, subject, header, data)
	} else {
		err = p.client.PublishMsg(ctx, subject, header, data)
	}
	if err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %s: %v", errors.ErrPublishFailed, entry.Topic, err),
			"publisher", "PublishEntry", "publish to bus")
	}

	if entry.Retain {
		p.storeRetained(ctx, entry)
	}
	return nil
}

// storeRetained writes the payload to the retained bucket. The bus
// publish already succeeded, so failures here are logged, not returned.
func (p *BusPublisher) storeRetained(ctx context.Context, entry *types.TopicEntry) {
	if p.retained == nil {
		p.logger.Warn("Retained bucket not initialized, dropping retained payload", "topic", entry.Topic)
		return
	}
	key := strings.ReplaceAll(entry.Topic, "/", ".")
	if _, err := p.retained.Put(ctx, key, []byte(entry.Payload)); err != nil {
		p.logger.Warn("Failed to store retained payload", "topic", entry.Topic, "error", err)
	}
}

// Retained returns the retained payload for a topic, if any.
func (p *BusPublisher) Retained(ctx context.Context, topic string) (string, bool, error) {
	if p.retained == nil {
		return "", false, errors.WrapInvalid(errors.ErrNotStarted, "publisher", "Retained", "read retained payload")
	}
	entry, err := p.retained.Get(ctx, strings.ReplaceAll(topic, "/", "."))
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return "", false, nil
		}
		return "", false, errors.WrapTransient(err, "publisher", "Retained", "read retained payload")
	}
	return string(entry.Value), true, nil
}
