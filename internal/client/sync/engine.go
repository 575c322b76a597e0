// Package sync drains the client's durable operation queue against the
// server. Ops replay strictly in enqueue order per resource; independent
// resources may interleave. Transient failures requeue with exponential
// backoff, everything else parks the op as permanently failed.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/akarpovs/roomdrop/internal/client/config"
	"github.com/akarpovs/roomdrop/internal/client/models"
	"github.com/akarpovs/roomdrop/internal/client/repositories/cache"
	"github.com/akarpovs/roomdrop/internal/client/repositories/queue"
	"github.com/akarpovs/roomdrop/internal/client/transport"
	"github.com/akarpovs/roomdrop/internal/common"
	"github.com/akarpovs/roomdrop/internal/logging"
	"github.com/akarpovs/roomdrop/internal/protocol"
)

const (
	drainBatchSize = 100
	maxBackoff     = 5 * time.Minute
)

// API is the slice of the server client the drain worker needs.
type API interface {
	Ping(ctx context.Context) error
	CreateItem(ctx context.Context, code string, req protocol.ItemCreatePayload) (*protocol.Item, error)
	UpdateItem(ctx context.Context, code, id string, req protocol.ItemUpdatePayload) (*protocol.Item, error)
	DeleteItem(ctx context.Context, code, id string) error
	UploadInit(ctx context.Context, req transport.UploadInitRequest) (*transport.UploadInitResponse, error)
	PutChunk(ctx context.Context, url string, data []byte) (string, error)
	AckChunk(ctx context.Context, uploadID string, index int, etag string) (*transport.AckState, error)
	Finalize(ctx context.Context, uploadID string) (*protocol.Item, error)
}

// Engine owns the drain worker.
type Engine struct {
	queue  queue.Repository
	cache  cache.Repository
	api    API
	config *config.Config
	log    logging.Logger
	obs    Observer

	mu       gosync.Mutex
	draining bool
	kick     chan struct{}
}

// New returns an Engine. A nil observer is replaced with NopObserver.
func New(q queue.Repository, c cache.Repository, api API, cfg *config.Config, log logging.Logger, obs Observer) *Engine {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Engine{
		queue:  q,
		cache:  c,
		api:    api,
		config: cfg,
		log:    log,
		obs:    obs,
		kick:   make(chan struct{}, 1),
	}
}

// FileUploadPayload is the queued form of a chunked file transfer.
type FileUploadPayload struct {
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mimeType"`
	ChunkSize int64  `json:"chunkSize"`
}

// Enqueue persists an operation and nudges the drain worker. It never blocks
// on the network; replay happens asynchronously.
func (e *Engine) Enqueue(ctx context.Context, kind, roomCode, resourceID string, payload any) (*models.PendingOp, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding op payload: %v", common.ErrValidation, err)
	}
	op := &models.PendingOp{
		ID:         uuid.NewString(),
		Kind:       kind,
		RoomCode:   roomCode,
		ResourceID: resourceID,
		Payload:    b,
		Status:     models.OpStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.queue.Enqueue(ctx, op); err != nil {
		return nil, err
	}

	select {
	case e.kick <- struct{}{}:
	default:
	}
	return op, nil
}

// Run is the drain worker loop. It drains on every nudge and on a slow
// heartbeat, so ops requeued with backoff eventually replay.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.config.RetryBackoff)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.kick:
		case <-ticker.C:
		}
		if err := e.SyncNow(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.log.Warn(ctx, "drain error", "error", err)
		}
	}
}

// SyncNow forces a drain. Concurrent calls coalesce; only one drain runs at
// a time.
func (e *Engine) SyncNow(ctx context.Context) error {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return nil
	}
	e.draining = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.draining = false
		e.mu.Unlock()
	}()

	if err := e.api.Ping(ctx); err != nil {
		// Offline: ops stay queued for a later drain.
		return err
	}

	e.obs.SyncStarted()
	synced, failed := 0, 0
	defer func() { e.obs.SyncFinished(synced, failed) }()

	// Resources with a failed op in this drain are skipped so their later
	// ops never replay out of order.
	blocked := map[string]bool{}

	for {
		ops, err := e.queue.Due(ctx, time.Now().UTC(), drainBatchSize)
		if err != nil {
			return err
		}

		progressed := false
		for _, op := range ops {
			if blocked[op.ResourceID] {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if err := e.queue.MarkSyncing(ctx, op.ID); err != nil {
				continue
			}

			item, err := e.apply(ctx, &op)
			switch {
			case err == nil:
				if err := e.queue.MarkDone(ctx, op.ID); err != nil {
					return err
				}
				e.mergeResult(ctx, &op, item)
				e.obs.OpSynced(op, item)
				synced++
				progressed = true

			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				// Interrupted in flight: back to the queue untouched.
				_ = e.queue.MarkPending(ctx, op.ID)
				return err

			case errors.Is(err, common.ErrTransient):
				blocked[op.ResourceID] = true
				failed++
				if op.RetryCount+1 >= e.config.MaxRetries {
					_ = e.queue.MarkFailed(ctx, op.ID, err.Error())
					e.obs.OpFailed(op, err, true)
				} else {
					next := time.Now().UTC().Add(e.backoff(op.RetryCount))
					_ = e.queue.RequeueTransient(ctx, op.ID, op.RetryCount+1, next, err.Error())
					e.obs.OpFailed(op, err, false)
				}

			default:
				// Conflict, not-found, validation, expired: retrying cannot
				// help, the user has to resolve it.
				blocked[op.ResourceID] = true
				failed++
				_ = e.queue.MarkFailed(ctx, op.ID, err.Error())
				e.obs.OpFailed(op, err, true)
			}
		}

		if !progressed || len(ops) < drainBatchSize {
			return nil
		}
	}
}

func (e *Engine) backoff(retryCount int) time.Duration {
	d := e.config.RetryBackoff << uint(retryCount)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

// apply replays one op against the server and returns the authoritative item
// when there is one.
func (e *Engine) apply(ctx context.Context, op *models.PendingOp) (*protocol.Item, error) {
	switch op.Kind {
	case models.OpItemCreate:
		var p protocol.ItemCreatePayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
		return e.api.CreateItem(ctx, op.RoomCode, p)

	case models.OpItemUpdate:
		var p protocol.ItemUpdatePayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
		return e.api.UpdateItem(ctx, op.RoomCode, op.ResourceID, p)

	case models.OpItemDelete:
		return nil, e.api.DeleteItem(ctx, op.RoomCode, op.ResourceID)

	case models.OpFileUpload:
		var p FileUploadPayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
		return e.uploadFile(ctx, op.RoomCode, p)

	default:
		return nil, fmt.Errorf("%w: unknown op kind %q", common.ErrValidation, op.Kind)
	}
}

// uploadFile runs the full chunk protocol for one local file: init, upload
// and ack every chunk, finalize.
func (e *Engine) uploadFile(ctx context.Context, roomCode string, p FileUploadPayload) (*protocol.Item, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", common.ErrValidation, p.Path, err)
	}

	chunkSize := p.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 5 << 20
	}
	totalChunks := int((int64(len(data)) + chunkSize - 1) / chunkSize)
	if totalChunks == 0 {
		totalChunks = 1
	}

	init, err := e.api.UploadInit(ctx, transport.UploadInitRequest{
		RoomCode:    roomCode,
		Filename:    p.Filename,
		MimeType:    p.MimeType,
		Size:        int64(len(data)),
		TotalChunks: totalChunks,
	})
	if err != nil {
		return nil, err
	}

	for i := 0; i < totalChunks; i++ {
		start := int64(i) * chunkSize
		end := start + chunkSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}

		etag, err := e.api.PutChunk(ctx, init.ChunkTargets[i], data[start:end])
		if err != nil {
			return nil, err
		}
		if _, err := e.api.AckChunk(ctx, init.UploadID, i, etag); err != nil {
			return nil, err
		}
	}

	return e.api.Finalize(ctx, init.UploadID)
}

// mergeResult folds the server's authoritative response into the local cache.
func (e *Engine) mergeResult(ctx context.Context, op *models.PendingOp, item *protocol.Item) {
	var err error
	if op.Kind == models.OpItemDelete {
		err = e.cache.MarkDeleted(ctx, op.ResourceID)
	} else if item != nil {
		err = e.cache.Upsert(ctx, CachedFromWire(item))
	}
	if err != nil {
		e.log.Warn(ctx, "cache merge error", "op", op.ID, "error", err)
	}
}

// CachedFromWire converts a wire item into its cache representation.
func CachedFromWire(item *protocol.Item) *models.CachedItem {
	return &models.CachedItem{
		ID:        item.ID,
		RoomCode:  item.RoomCode,
		Type:      item.Type,
		Name:      item.Name,
		Content:   item.Content,
		Version:   item.Version,
		CreatedBy: item.CreatedBy,
		UpdatedAt: item.UpdatedAt,
	}
}
