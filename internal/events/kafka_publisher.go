package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/ledger"
)

var _ ledger.Subscriber = (*KafkaPublisher)(nil)

// modelUpdateKey keeps all model update events on one partition so
// consumers see them in order.
const modelUpdateKey = "model"

// queueSize bounds the publish backlog. Events beyond it are dropped;
// the trading path never waits for the broker.
const queueSize = 1024

// messageWriter is the broker-facing surface of kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	// PublishTicks enables per-tick events. Off by default; tick volume
	// dwarfs lifecycle events.
	PublishTicks bool
	// PublishTimeout bounds each broker write.
	PublishTimeout time.Duration
}

// KafkaPublisher emits Events to one Kafka topic. It satisfies the
// position ledger's Subscriber interface, so lifecycle callbacks map
// one-to-one onto published messages. Callbacks only enqueue: broker
// writes happen on the publisher's own goroutine, so a slow or down
// broker never stalls a ledger transition. Publish failures and
// overflow drops are logged, not propagated.
type KafkaPublisher struct {
	writer  messageWriter
	log     zerolog.Logger
	timeout time.Duration
	ticks   bool
	nowMs   func() int64

	queue  chan kafka.Message
	done   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewKafkaPublisher creates a publisher and starts its send loop.
// Messages are hash-partitioned by key.
func NewKafkaPublisher(cfg KafkaConfig, log zerolog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Gzip,
		MaxAttempts:  3,
		WriteTimeout: timeout,
		BatchTimeout: 50 * time.Millisecond,
	}

	return newPublisher(writer, cfg.PublishTicks, timeout, log), nil
}

func newPublisher(writer messageWriter, publishTicks bool, timeout time.Duration, log zerolog.Logger) *KafkaPublisher {
	p := &KafkaPublisher{
		writer:  writer,
		log:     log,
		timeout: timeout,
		ticks:   publishTicks,
		nowMs:   func() int64 { return time.Now().UnixMilli() },
		queue:   make(chan kafka.Message, queueSize),
		done:    make(chan struct{}),
	}

	p.wg.Add(1)
	go p.sendLoop()

	return p
}

// OnOpen publishes a POSITION_OPENED event.
func (p *KafkaPublisher) OnOpen(pos *domain.Position) {
	p.publish(pos.TokenAddress, Event{
		Type:         TypePositionOpened,
		TokenAddress: pos.TokenAddress,
		Position:     pos,
	})
}

// OnTick publishes a POSITION_TICK event when tick publishing is enabled.
func (p *KafkaPublisher) OnTick(pos *domain.Position) {
	if !p.ticks {
		return
	}
	p.publish(pos.TokenAddress, Event{
		Type:         TypePositionTick,
		TokenAddress: pos.TokenAddress,
		Position:     pos,
	})
}

// OnExitTriggered publishes an EXIT_TRIGGERED event.
func (p *KafkaPublisher) OnExitTriggered(pos *domain.Position, reason string) {
	p.publish(pos.TokenAddress, Event{
		Type:         TypeExitTriggered,
		TokenAddress: pos.TokenAddress,
		Position:     pos,
		Reason:       reason,
	})
}

// OnClose publishes a POSITION_CLOSED event.
func (p *KafkaPublisher) OnClose(outcome *domain.TradeOutcome) {
	p.publish(outcome.TokenAddress, Event{
		Type:         TypePositionClosed,
		TokenAddress: outcome.TokenAddress,
		Outcome:      outcome,
		Reason:       outcome.ExitReason,
	})
}

// PublishModelUpdated publishes the model state after a learning update.
func (p *KafkaPublisher) PublishModelUpdated(model *domain.ModelState) {
	p.publish(modelUpdateKey, Event{
		Type:  TypeModelUpdated,
		Model: model,
	})
}

// publish enqueues one event. It never blocks: a full queue drops the
// event with a warning.
func (p *KafkaPublisher) publish(key string, ev Event) {
	if p.closed.Load() {
		return
	}

	ev.EmittedAtMs = p.nowMs()

	value, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Str("type", string(ev.Type)).Msg("marshal event")
		return
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}

	select {
	case p.queue <- msg:
	default:
		p.log.Warn().Str("type", string(ev.Type)).Str("key", key).Msg("event queue full, dropping event")
	}
}

// sendLoop drains the queue until Close, then flushes what is left.
func (p *KafkaPublisher) sendLoop() {
	defer p.wg.Done()

	for {
		select {
		case msg := <-p.queue:
			p.write(msg)
		case <-p.done:
			for {
				select {
				case msg := <-p.queue:
					p.write(msg)
				default:
					return
				}
			}
		}
	}
}

func (p *KafkaPublisher) write(msg kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warn().Err(err).Str("key", string(msg.Key)).Msg("publish event failed")
	}
}

// Close stops accepting events, flushes the queue, and closes the
// underlying writer.
func (p *KafkaPublisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	close(p.done)
	p.wg.Wait()
	return p.writer.Close()
}
