// Package autosave writes best-effort snapshots of committed artifacts off
// the request path.
package autosave

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/models"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/telemetry"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/utils"
)

// PitchStage is the stage label used for one-shot pitch packs.
const PitchStage = "pitch"

// Saver is the subset of the project store the agent writes to.
type Saver interface {
	SaveAutosave(ctx context.Context, rec models.AutosaveRecord) error
}

// Options configures an Agent.
type Options struct {
	Enabled      bool
	QueueSize    int
	WriteTimeout time.Duration
}

// Agent owns a bounded queue and one writer goroutine. Record never blocks
// and never reports failure to the caller.
type Agent struct {
	saver   Saver
	opts    Options
	logger  *utils.FieldLogger
	queue   chan models.AutosaveRecord
	done    chan struct{}
	closing sync.Once
	mu      sync.RWMutex
	closed  bool

	written metric.Int64Counter
	dropped metric.Int64Counter
}

// New starts an agent. With Enabled false no goroutine is started.
func New(saver Saver, opts Options, logger *utils.Logger) *Agent {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = utils.GetLogger()
	}

	meter := telemetry.Meter("github.com/thepurplechild/manthan-creator-suite-v0.1/autosave")
	written, _ := meter.Int64Counter("manthan.autosave.writes",
		metric.WithDescription("Autosave write attempts, by outcome"))
	dropped, _ := meter.Int64Counter("manthan.autosave.dropped",
		metric.WithDescription("Autosave records dropped because the queue was full"))

	a := &Agent{
		saver:   saver,
		opts:    opts,
		logger:  logger.WithFields(map[string]interface{}{"component": "autosave"}),
		queue:   make(chan models.AutosaveRecord, opts.QueueSize),
		done:    make(chan struct{}),
		written: written,
		dropped: dropped,
	}
	if opts.Enabled && saver != nil {
		go a.run()
	} else {
		close(a.done)
	}
	return a
}

// DocumentID is the deterministic autosave key for a project stage.
func DocumentID(projectID string, stage models.Stage) string {
	return fmt.Sprintf("autosave-%s-%s", projectID, stage)
}

// PitchDocumentID keys a pitch pack by owner and premise.
func PitchDocumentID(ownerID, title, logline string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(title)) + "\x00" +
		strings.ToLower(strings.TrimSpace(logline))))
	owner := ownerID
	if owner == "" {
		owner = "anon"
	}
	return fmt.Sprintf("pitch-%s-%s", owner, hex.EncodeToString(sum[:8]))
}

// Enabled reports whether records are written.
func (a *Agent) Enabled() bool {
	return a != nil && a.opts.Enabled && a.saver != nil
}

// Record snapshots a committed stage artifact.
func (a *Agent) Record(projectID, ownerID string, stage models.Stage, text string, quality models.QualityRecord) string {
	docID := DocumentID(projectID, stage)
	a.enqueue(models.AutosaveRecord{
		DocID:     docID,
		ProjectID: projectID,
		OwnerID:   ownerID,
		Stage:     string(stage),
		Text:      text,
		Quality:   quality,
	})
	return docID
}

// RecordPitch snapshots a pitch pack under docID.
func (a *Agent) RecordPitch(docID, ownerID string, pack *models.PitchPack) {
	if pack == nil {
		return
	}
	rec := models.AutosaveRecord{
		DocID:   docID,
		OwnerID: ownerID,
		Stage:   PitchStage,
		Text:    pack.Synopsis,
		Pitch:   pack,
	}
	if pack.Quality != nil {
		rec.Quality = *pack.Quality
	}
	a.enqueue(rec)
}

func (a *Agent) enqueue(rec models.AutosaveRecord) {
	if !a.Enabled() {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- rec:
	default:
		a.dropped.Add(context.Background(), 1)
		a.logger.Warn("autosave queue full, dropping record", map[string]interface{}{
			"doc_id": rec.DocID,
		})
	}
}

func (a *Agent) run() {
	defer close(a.done)
	for rec := range a.queue {
		a.write(rec)
	}
}

func (a *Agent) write(rec models.AutosaveRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), a.opts.WriteTimeout)
	defer cancel()

	outcome := "ok"
	if err := a.saver.SaveAutosave(ctx, rec); err != nil {
		outcome = "error"
		a.logger.Error("autosave failed", map[string]interface{}{
			"doc_id": rec.DocID,
			"error":  err.Error(),
		})
	} else {
		a.logger.Debug("autosaved", map[string]interface{}{"doc_id": rec.DocID})
	}
	a.written.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Close stops accepting records and waits for the queue to drain or ctx to end.
func (a *Agent) Close(ctx context.Context) error {
	a.closing.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
