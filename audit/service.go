// Package audit records operator commands (spawn, retarget, mine, ...) to the
// database in batches, off the request path.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kasuganosora/tilewalk/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	queueSize     = 1024
	batchSize     = 100
	flushInterval = 2 * time.Second
)

// Entry holds one command to be logged.
type Entry struct {
	TraceID    string
	Subject    string
	ActorID    string
	Action     string
	Request    interface{}
	Error      string
	IP         string
	MapName    string
	DurationMs int
}

// Service logs entries asynchronously in batches.
type Service struct {
	db       *gorm.DB
	ch       chan *model.CommandLog
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &Service{
		db:     db,
		ch:     make(chan *model.CommandLog, queueSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an entry for async DB write. A full queue drops the entry.
func (svc *Service) Log(entry Entry) {
	var req datatypes.JSON
	if entry.Request != nil {
		if b, err := json.Marshal(entry.Request); err == nil {
			req = datatypes.JSON(b)
		}
	}
	record := &model.CommandLog{
		TraceID:    entry.TraceID,
		Subject:    entry.Subject,
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		Request:    req,
		Error:      entry.Error,
		IP:         entry.IP,
		MapName:    entry.MapName,
		DurationMs: entry.DurationMs,
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// Recent returns the newest commands for an actor, newest first.
func (svc *Service) Recent(ctx context.Context, actorID string, limit int) ([]model.CommandLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var logs []model.CommandLog
	err := svc.db.WithContext(ctx).
		Where("actor_id = ?", actorID).
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.stopOnce.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.CommandLog, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Error(err), zap.Int("entries", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
