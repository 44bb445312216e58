package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PollTask одна задача опроса шлюза
type PollTask struct {
	// Check одна попытка; true = задача завершена, дальше не опрашивать
	Check func(ctx context.Context) bool
	// Expire вызывается один раз, если время опроса истекло
	Expire func(ctx context.Context)
}

type pollEntry struct {
	cancel context.CancelFunc
}

// Poller реестр повторяющихся задач опроса по transactionId.
// Первая попытка выполняется сразу, затем раз в interval; таймаут считается от первой попытки.
type Poller struct {
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	active map[string]*pollEntry
	closed bool
	wg     sync.WaitGroup
}

// NewPoller создаёт пустой реестр
func NewPoller(interval, timeout time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
		active:   make(map[string]*pollEntry),
	}
}

// Start запускает опрос id; уже активный опрос для того же id заменяется.
// После StopAll новые задачи не запускаются.
func (p *Poller) Start(id string, task PollTask) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	if prev, ok := p.active[id]; ok {
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := &pollEntry{cancel: cancel}
	p.active[id] = entry

	p.wg.Add(1)
	go p.run(ctx, id, entry, task)
	return true
}

// Stop отменяет опрос id; повторный вызов и вызов для неизвестного id ничего не делают
func (p *Poller) Stop(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.active[id]; ok {
		entry.cancel()
		delete(p.active, id)
	}
}

// StopAll отменяет все опросы и ждёт завершения горутин (или отмены ctx)
func (p *Poller) StopAll(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	for id, entry := range p.active {
		entry.cancel()
		delete(p.active, id)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active возвращает true, если опрос id запущен
func (p *Poller) Active(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[id]
	return ok
}

// Len количество активных опросов
func (p *Poller) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

func (p *Poller) run(ctx context.Context, id string, entry *pollEntry, task PollTask) {
	defer p.wg.Done()
	defer p.release(id, entry)

	deadline := p.now().Add(p.timeout)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if task.Check(ctx) || ctx.Err() != nil {
			return
		}
		if !p.now().Before(deadline) {
			p.logger.Info("polling timed out",
				zap.String("transaction_id", id),
				zap.Duration("timeout", p.timeout),
			)
			task.Expire(ctx)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// release убирает запись, если её не заменил новый Start
func (p *Poller) release(id string, entry *pollEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry.cancel()
	if p.active[id] == entry {
		delete(p.active, id)
	}
}
