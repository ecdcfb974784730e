package queue

import (
	"context"
	"fmt"
	"sync"
)

const (
	JobReceiptAnalysis = "receipt-analysis"
	JobArchiveUpload   = "archive-upload"
	JobImageOCR        = "image-ocr"
)

// Job is one unit of background work. Delivery is at-least-once, so handlers
// must be idempotent.
type Job struct {
	Type           string
	ReceiptID      string
	ReceiptImageID string
	Country        string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Handler processes jobs of one type. Run errors trigger a retry; Dead fires
// once when the retry budget is exhausted.
type Handler interface {
	Run(ctx context.Context, job Job) error
	Dead(ctx context.Context, job Job, cause error)
}

type funcHandler struct {
	run  func(ctx context.Context, job Job) error
	dead func(ctx context.Context, job Job, cause error)
}

func (h funcHandler) Run(ctx context.Context, job Job) error {
	return h.run(ctx, job)
}

func (h funcHandler) Dead(ctx context.Context, job Job, cause error) {
	if h.dead != nil {
		h.dead(ctx, job, cause)
	}
}

// HandlerFuncs adapts plain functions to a Handler. dead may be nil.
func HandlerFuncs(run func(ctx context.Context, job Job) error, dead func(ctx context.Context, job Job, cause error)) Handler {
	return funcHandler{run: run, dead: dead}
}

// Dispatcher routes jobs to the handler registered for their type.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(jobType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[jobType] = h
}

func (d *Dispatcher) handler(jobType string) (Handler, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[jobType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for job type %q", jobType)
	}
	return h, nil
}
