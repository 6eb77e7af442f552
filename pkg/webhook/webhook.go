// Package webhook implements the scheduler's best-effort task-completion
// notifier (spec.md §4.8): after a batch commits, every updated task uid is
// posted to zero or more configured endpoints as a gzip-compressed
// newline-delimited-JSON body, with a bounded timeout and no retry. The
// channel-fed dispatch loop is adapted from the teacher's event Broker
// (pkg/events): a buffered channel plus a single goroutine, just delivering
// over HTTP instead of broadcasting to local subscribers.
package webhook

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/stratum/pkg/log"
	"github.com/cuemby/stratum/pkg/metrics"
	"github.com/cuemby/stratum/pkg/types"
	"github.com/rs/zerolog"
)

// Endpoint is one configured webhook destination.
type Endpoint struct {
	URL           string
	Authorization string
}

// Notifier delivers task-completion notifications best-effort: failures are
// logged, never retried, and never block the run loop.
type Notifier struct {
	endpoints []Endpoint
	timeout   time.Duration
	client    *http.Client
	logger    zerolog.Logger

	queue  chan []*types.Task
	stopCh chan struct{}
}

// New returns a Notifier for the given endpoints. Callers pass already-read
// task snapshots to Notify rather than uids, since spec.md §4.8 requires the
// read transaction to be captured before the delivery is spawned so later
// writes (e.g. a subsequent batch touching the same tasks) can't change what
// gets delivered.
func New(endpoints []Endpoint, timeout time.Duration) *Notifier {
	return &Notifier{
		endpoints: endpoints,
		timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
		logger:    log.WithComponent("webhook"),
		queue:     make(chan []*types.Task, 64),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the dispatch loop.
func (n *Notifier) Start() {
	go n.run()
}

// Stop stops the dispatch loop. Queued notifications are dropped.
func (n *Notifier) Stop() {
	close(n.stopCh)
}

// Notify enqueues a snapshot of finished tasks for best-effort delivery.
// Never blocks: if the queue is full, the notification is dropped and
// logged, since a slow or dead webhook endpoint must never back-pressure
// the run loop.
func (n *Notifier) Notify(tasks []*types.Task) {
	if len(n.endpoints) == 0 || len(tasks) == 0 {
		return
	}
	select {
	case n.queue <- tasks:
	default:
		n.logger.Warn().Int("count", len(tasks)).Msg("webhook queue full, dropping notification")
	}
}

func (n *Notifier) run() {
	for {
		select {
		case tasks := <-n.queue:
			n.deliver(tasks)
		case <-n.stopCh:
			return
		}
	}
}

func (n *Notifier) deliver(tasks []*types.Task) {
	body, err := encodeGzipNDJSON(tasks)
	if err != nil {
		n.logger.Error().Err(err).Msg("failed to encode webhook payload")
		return
	}

	for _, ep := range n.endpoints {
		n.post(ep, body)
	}
}

func (n *Notifier) post(ep Endpoint, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		n.logger.Error().Err(err).Str("url", ep.URL).Msg("failed to build webhook request")
		metrics.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		return
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set("Content-Encoding", "gzip")
	if ep.Authorization != "" {
		req.Header.Set("Authorization", ep.Authorization)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn().Err(err).Str("url", ep.URL).Msg("webhook delivery failed")
		metrics.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger.Warn().Str("url", ep.URL).Int("status", resp.StatusCode).Msg("webhook endpoint rejected delivery")
		metrics.WebhookDeliveriesTotal.WithLabelValues("rejected").Inc()
		return
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues("ok").Inc()
}

func encodeGzipNDJSON(tasks []*types.Task) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, t := range tasks {
		if err := enc.Encode(t); err != nil {
			return nil, err
		}
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
