// Package searchevents publishes one Kafka event per finished granule search.
package searchevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/cespare/xxhash/v2"

	"github.com/earthdata/granule-bridge/internal/core/model"
	"github.com/earthdata/granule-bridge/internal/granules"
	"github.com/earthdata/granule-bridge/internal/mapper"
	"github.com/earthdata/granule-bridge/internal/opensearch"
)

var (
	ErrQueueFull = errors.New("searchevents: queue full")
	ErrClosed    = errors.New("searchevents: publisher closed")
)

type Event struct {
	CollectionID string    `json:"collection_id"`
	Outcome      string    `json:"outcome"`
	Status       int       `json:"status"`
	ElapsedMS    int64     `json:"elapsed_ms"`
	BoundingBox  string    `json:"bounding_box,omitempty"`
	Point        string    `json:"point,omitempty"`
	Temporal     string    `json:"temporal,omitempty"`
	PageNum      *int      `json:"page_num,omitempty"`
	PageSize     *int      `json:"page_size,omitempty"`
	H3Cell       string    `json:"h3_cell,omitempty"`
	H3Res        int       `json:"h3_res,omitempty"`
	H3Parent     string    `json:"h3_parent,omitempty"`
	TS           time.Time `json:"ts"`
}

type Config struct {
	Brokers []string
	Topic   string
	Queue   int
	H3Res   int

	// ParentRes adds a coarser cell for grouping nearby searches; negative disables it.
	ParentRes int
}

type Publisher struct {
	logger *slog.Logger
	topic  string
	res    int
	parent int
	cells  mapper.Interface

	mu      sync.RWMutex
	closed  bool
	events  chan Event
	prod    sarama.AsyncProducer
	stopped chan struct{}
}

func producerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	return cfg
}

func NewPublisher(logger *slog.Logger, cfg Config, cells mapper.Interface) (*Publisher, error) {
	prod, err := sarama.NewAsyncProducer(cfg.Brokers, producerConfig())
	if err != nil {
		return nil, fmt.Errorf("searchevents: create async producer: %w", err)
	}
	return newWithProducer(logger, cfg, cells, prod), nil
}

func newWithProducer(logger *slog.Logger, cfg Config, cells mapper.Interface, prod sarama.AsyncProducer) *Publisher {
	p := newPublisher(logger, cfg, cells, prod)

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Warn("search event marshal failed", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(PartitionKey(ev.CollectionID)),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				p.logger.Warn("search event producer error", "err", err)
			}
		}
	}()
	return p
}

func newPublisher(logger *slog.Logger, cfg Config, cells mapper.Interface, prod sarama.AsyncProducer) *Publisher {
	q := cfg.Queue
	if q <= 0 {
		q = 256
	}
	return &Publisher{
		logger:  logger,
		topic:   cfg.Topic,
		res:     cfg.H3Res,
		parent:  cfg.ParentRes,
		cells:   cells,
		events:  make(chan Event, q),
		prod:    prod,
		stopped: make(chan struct{}),
	}
}

// PartitionKey keeps one collection's events on one partition.
func PartitionKey(collectionID string) string {
	return strconv.FormatUint(xxhash.Sum64String(collectionID), 16)
}

// RecordSearch enqueues an event without blocking; a full queue drops it.
func (p *Publisher) RecordSearch(_ context.Context, rec granules.SearchRecord) error {
	ev := p.eventFor(rec)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.events <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Publisher) eventFor(rec granules.SearchRecord) Event {
	ev := Event{
		CollectionID: rec.Params.EchoCollectionID,
		Outcome:      rec.Outcome,
		Status:       rec.StatusCode,
		ElapsedMS:    rec.Elapsed.Milliseconds(),
		BoundingBox:  rec.Params.BoundingBox,
		Point:        rec.Params.Point,
		Temporal:     rec.Params.Temporal,
		PageNum:      rec.Params.PageNum,
		PageSize:     rec.Params.PageSize,
		TS:           rec.At.UTC(),
	}
	if p.cells == nil {
		return ev
	}
	if cell, ok := p.cellFor(rec.Params); ok {
		ev.H3Cell = cell
		ev.H3Res = p.res
		if p.parent >= 0 && p.parent < p.res {
			if pc, err := p.cells.Parent(cell, p.parent); err == nil {
				ev.H3Parent = pc
			}
		}
	}
	return ev
}

// bbox wins over point, matching the rendered query
func (p *Publisher) cellFor(sp opensearch.SearchParameters) (string, bool) {
	if sp.BoundingBox != "" {
		if bb, err := model.ParseBBox(sp.BoundingBox); err == nil {
			if c, err := p.cells.CellForBBox(bb, p.res); err == nil {
				return c, true
			}
		}
		return "", false
	}
	if sp.Point != "" {
		if pt, err := model.ParsePoint(sp.Point); err == nil {
			if c, err := p.cells.CellForPoint(pt, p.res); err == nil {
				return c, true
			}
		}
	}
	return "", false
}

// Close drains queued events and closes the producer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.stopped
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("searchevents: close producer: %w", err)
	}
	return nil
}
