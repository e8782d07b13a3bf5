package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/internal/metrics"
)

// Event operations.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// Event is one message on the item topic. Upserts carry a full STAC item
// document; deletes name the item.
type Event struct {
	Version    int             `json:"version"`
	Op         string          `json:"op"`
	Item       json.RawMessage `json:"item,omitempty"`
	Collection string          `json:"collection,omitempty"`
	ID         string          `json:"id,omitempty"`
}

// Validate checks the envelope. The item document is checked when decoded.
func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case OpUpsert:
		if len(e.Item) == 0 {
			return fmt.Errorf("upsert requires an item")
		}
	case OpDelete:
		if strings.TrimSpace(e.Collection) == "" || strings.TrimSpace(e.ID) == "" {
			return fmt.Errorf("delete requires collection and id")
		}
	default:
		return fmt.Errorf("op must be upsert|delete")
	}
	return nil
}

// Consumer applies item events from a Kafka topic.
type Consumer struct {
	cfg    config.KafkaConfig
	writer Applier
	logger *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, writer Applier, logger *slog.Logger) *Consumer {
	return &Consumer{cfg: cfg, writer: writer, logger: logger}
}

// Start consumes until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessBatch, maxBatch: c.cfg.BatchSize, maxWait: c.cfg.BatchWait}
	c.logger.Info("kafka item consumer starting",
		slog.Any("brokers", c.cfg.Brokers),
		slog.String("topic", c.cfg.Topic),
		slog.String("group", c.cfg.GroupID),
		slog.Int("batch_size", c.cfg.BatchSize),
		slog.Duration("batch_wait", c.cfg.BatchWait),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka item consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return nil
				}
				c.logger.Error("kafka consumer error", slog.String("error", err.Error()))
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

// ProcessBatch applies a batch of messages as one catalog update. Events
// for the same item collapse to the last one in the batch. Messages that
// cannot be decoded or are invalid are logged and skipped so they do not
// block the partition; only store failures are returned, which makes the
// whole batch redelivered.
func (c *Consumer) ProcessBatch(ctx context.Context, msgs []*sarama.ConsumerMessage) error {
	latest := make(map[catalog.Key]*catalog.Item, len(msgs))
	order := make([]catalog.Key, 0, len(msgs))
	for _, msg := range msgs {
		key, it, ok := c.decode(msg)
		if !ok {
			continue
		}
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		// nil marks a delete
		latest[key] = it
	}
	if len(order) == 0 {
		return nil
	}

	var (
		upserts []*catalog.Item
		deletes []catalog.Key
	)
	for _, k := range order {
		if it := latest[k]; it != nil {
			upserts = append(upserts, it)
		} else {
			deletes = append(deletes, k)
		}
	}
	if _, err := c.writer.Apply(ctx, SourceKafka, upserts, deletes); err != nil {
		return fmt.Errorf("apply %d events: %w", len(msgs), err)
	}
	return nil
}

// decode returns the key an event targets and, for upserts, the item.
func (c *Consumer) decode(msg *sarama.ConsumerMessage) (catalog.Key, *catalog.Item, bool) {
	skip := func(reason string, err error) (catalog.Key, *catalog.Item, bool) {
		metrics.ObserveIngest(SourceKafka, "invalid")
		c.logger.Warn("kafka item event skipped",
			slog.String("reason", reason),
			slog.String("topic", msg.Topic),
			slog.Int("partition", int(msg.Partition)),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		return catalog.Key{}, nil, false
	}

	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return skip("decode", err)
	}
	if err := ev.Validate(); err != nil {
		return skip("validate", err)
	}
	if ev.Op == OpDelete {
		return catalog.Key{Collection: ev.Collection, ID: ev.ID}, nil, true
	}

	it, err := catalog.DecodeFeature(ev.Item)
	if err == nil {
		err = it.Validate()
	}
	if err != nil {
		return skip("item", err)
	}
	return it.Key(), it, true
}

type batchProcessor func(context.Context, []*sarama.ConsumerMessage) error

// groupHandler hands messages to process in batches of at most maxBatch,
// flushing a partial batch maxWait after its first message. Offsets are
// marked only once their batch is applied.
type groupHandler struct {
	process  batchProcessor
	maxBatch int
	maxWait  time.Duration
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	maxBatch := max(h.maxBatch, 1)
	batch := make([]*sarama.ConsumerMessage, 0, maxBatch)

	var (
		timer *time.Timer
		due   <-chan time.Time
	)
	flush := func() error {
		if timer != nil {
			timer.Stop()
			timer, due = nil, nil
		}
		if len(batch) == 0 {
			return nil
		}
		if err := h.process(ctx, batch); err != nil {
			first, last := batch[0], batch[len(batch)-1]
			return fmt.Errorf("process failed (topic=%s, part=%d, off=%d-%d): %w",
				first.Topic, first.Partition, first.Offset, last.Offset, err)
		}
		for _, msg := range batch {
			sess.MarkMessage(msg, "")
		}
		batch = batch[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return flush()
			}
			batch = append(batch, msg)
			if len(batch) >= maxBatch {
				if err := flush(); err != nil {
					return err
				}
			} else if timer == nil {
				timer = time.NewTimer(h.maxWait)
				due = timer.C
			}
		case <-due:
			timer, due = nil, nil
			if err := flush(); err != nil {
				return err
			}
		}
	}
}
