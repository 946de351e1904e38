package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"admin-auth-service/internal/bucketing"
	"admin-auth-service/internal/client"
	"admin-auth-service/internal/config"
	"admin-auth-service/internal/model"
	"admin-auth-service/internal/util"
)

const (
	queueCapacity = 1024
	sinkTimeout   = 10 * time.Second
)

// Recorder ships security events to the analytics sinks off the request
// path. Record never blocks and never fails the caller: when the queue is
// full the event is dropped and counted. Sinks that are nil are skipped, so
// a partially configured environment still records to whatever is present.
type Recorder struct {
	kafka      *client.KafkaProducer
	clickhouse *client.ClickHouseClient
	es         *client.ESClient
	buckets    *bucketing.Manager
	esIndex    string

	queue     chan *model.SecurityEvent
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	dropped int64
}

func NewRecorder(cfg *config.Config, kafka *client.KafkaProducer, clickhouse *client.ClickHouseClient, es *client.ESClient, buckets *bucketing.Manager) *Recorder {
	r := &Recorder{
		kafka:      kafka,
		clickhouse: clickhouse,
		es:         es,
		buckets:    buckets,
		esIndex:    cfg.Elasticsearch.EventIndex,
		queue:      make(chan *model.SecurityEvent, queueCapacity),
		done:       make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues a security event. Safe to call from any goroutine.
func (r *Recorder) Record(eventType model.SecurityEventType, requestToken, detail string) {
	now := time.Now().UTC()
	event := &model.SecurityEvent{
		EventID:      uuid.New().String(),
		EventBucket:  r.buckets.EventBucket(requestToken),
		EventDate:    r.buckets.DateBucket(now),
		EventTime:    now,
		EventType:    eventType,
		RequestToken: requestToken,
		Detail:       detail,
	}

	select {
	case r.queue <- event:
	default:
		r.mu.Lock()
		r.dropped++
		dropped := r.dropped
		r.mu.Unlock()
		util.Warn("audit queue full, event dropped",
			util.String("event_type", string(eventType)),
			util.Any("total_dropped", dropped))
	}
}

// Dropped reports how many events were discarded due to backpressure.
func (r *Recorder) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close stops intake, drains queued events, then returns.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.queue)
		<-r.done
	})
}

func (r *Recorder) run() {
	defer close(r.done)
	for event := range r.queue {
		r.dispatch(event)
	}
}

// dispatch writes one event to all configured sinks in parallel. A sink
// failure is logged and ignored; the sinks are independent of each other.
func (r *Recorder) dispatch(event *model.SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	// Plain group, not WithContext: a failing sink must not cancel the
	// others.
	var g errgroup.Group

	if r.kafka != nil {
		g.Go(func() error {
			payload, err := json.Marshal(event)
			if err != nil {
				return err
			}
			return r.kafka.Produce(ctx, []byte(event.RequestToken), payload)
		})
	}

	if r.clickhouse != nil {
		g.Go(func() error {
			return r.clickhouse.Exec(ctx,
				`INSERT INTO security_events
					(event_id, event_bucket, event_date, event_time, event_type, request_token, detail)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				event.EventID, event.EventBucket, event.EventDate, event.EventTime,
				string(event.EventType), event.RequestToken, event.Detail)
		})
	}

	if r.es != nil {
		g.Go(func() error {
			res, err := r.es.IndexDocument(ctx, r.esIndex, event.EventID, event)
			if err != nil {
				return err
			}
			defer res.Body.Close()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		util.Error("failed to record security event",
			util.ErrorField(err),
			util.String("event_id", event.EventID),
			util.String("event_type", string(event.EventType)))
	}
}
