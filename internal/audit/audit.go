// Package audit records tool usage and threat incidents off the request path.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/HanTheDev/tool-gateway/internal/metrics"
	"github.com/HanTheDev/tool-gateway/internal/models"
)

// Sink accepts audit records. Implementations must never block the caller
// and have no error to report: a failed audit write cannot fail the
// operation it describes.
type Sink interface {
	RecordUsage(entry models.UsageLog)
	RecordIncident(incident models.ThreatIncident)
}

// Store persists batches of audit records.
type Store interface {
	InsertAudit(ctx context.Context, usage []models.UsageLog, incidents []models.ThreatIncident) error
}

const (
	flushInterval = 200 * time.Millisecond
	flushBatch    = 500
	drainTimeout  = 3 * time.Second
	writeTimeout  = 5 * time.Second
)

type record struct {
	usage    *models.UsageLog
	incident *models.ThreatIncident
}

// Writer buffers records in a bounded channel and batch-inserts them in a
// background goroutine. When the buffer is full records are dropped and counted.
type Writer struct {
	store   Store
	buffer  chan record
	done    chan struct{}
	flushed chan struct{}
	logger  *zap.Logger
	metrics metrics.Metrics
}

func NewWriter(store Store, bufferSize int, logger *zap.Logger, m metrics.Metrics) *Writer {
	w := &Writer{
		store:   store,
		buffer:  make(chan record, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
		metrics: m,
	}
	go w.flushLoop()
	return w
}

func (w *Writer) RecordUsage(entry models.UsageLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	w.enqueue(record{usage: &entry})
}

func (w *Writer) RecordIncident(incident models.ThreatIncident) {
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = time.Now().UTC()
	}
	w.enqueue(record{incident: &incident})
}

func (w *Writer) enqueue(r record) {
	select {
	case w.buffer <- r:
	default:
		w.metrics.IncAuditDropped()
		w.logger.Warn("audit buffer full, dropping record")
	}
}

// Close drains buffered records and waits for the flush loop. Call once.
func (w *Writer) Close() {
	close(w.done)
	<-w.flushed
}

func (w *Writer) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]record, 0, flushBatch)
	for {
		select {
		case r := <-w.buffer:
			batch = append(batch, r)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			deadline := time.After(drainTimeout)
		drain:
			for {
				select {
				case r := <-w.buffer:
					batch = append(batch, r)
				case <-deadline:
					break drain
				default:
					break drain
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *Writer) flush(batch []record) {
	var (
		usage     []models.UsageLog
		incidents []models.ThreatIncident
	)
	for _, r := range batch {
		if r.usage != nil {
			usage = append(usage, *r.usage)
		}
		if r.incident != nil {
			incidents = append(incidents, *r.incident)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := w.store.InsertAudit(ctx, usage, incidents); err != nil {
		w.logger.Error("audit flush failed",
			zap.Int("usage", len(usage)),
			zap.Int("incidents", len(incidents)),
			zap.Error(err),
		)
	}
}

// LogSink writes audit records to the logger only.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) RecordUsage(entry models.UsageLog) {
	s.logger.Info("tool usage",
		zap.Stringp("tenant_id", entry.TenantID),
		zap.String("tool", entry.ToolName),
		zap.Int64("latency_ms", entry.LatencyMs),
		zap.String("status", string(entry.Status)),
	)
}

func (s *LogSink) RecordIncident(incident models.ThreatIncident) {
	s.logger.Warn("threat incident",
		zap.Stringp("tenant_id", incident.TenantID),
		zap.String("pattern_id", incident.PatternID),
		zap.String("category", incident.Category),
		zap.Float64("risk_score", incident.RiskScore),
		zap.String("action", incident.ActionTaken),
	)
}
