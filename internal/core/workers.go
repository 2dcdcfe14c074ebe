package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/orrn/labelgate/internal/logging"
)

var (
	ErrPoolStopped = errors.New("background pool is stopped")
	ErrPoolFull    = errors.New("background pool queue is full")
)

type PoolConfig struct {
	WorkerCount int
	QueueSize   int
}

type backgroundTask struct {
	name string
	run  func(ctx context.Context) error
}

// BackgroundPool runs fire-and-forget tasks. Task errors only reach the log;
// nobody waits on them.
type BackgroundPool struct {
	workers int
	tasks   chan *backgroundTask
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

func NewBackgroundPool(cfg PoolConfig) *BackgroundPool {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	return &BackgroundPool{
		workers: cfg.WorkerCount,
		tasks:   make(chan *backgroundTask, cfg.QueueSize),
		stopCh:  make(chan struct{}),
	}
}

func (p *BackgroundPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop stops accepting tasks, lets the workers drain what is already queued and
// waits for them to finish.
func (p *BackgroundPool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *BackgroundPool) Submit(name string, run func(ctx context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return ErrPoolStopped
	}

	select {
	case p.tasks <- &backgroundTask{name: name, run: run}:
		return nil
	default:
		return ErrPoolFull
	}
}

func (p *BackgroundPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case task := <-p.tasks:
			p.execute(id, task)
		case <-p.stopCh:
			for {
				select {
				case task := <-p.tasks:
					p.execute(id, task)
				default:
					return
				}
			}
		}
	}
}

func (p *BackgroundPool) execute(id int, task *backgroundTask) {
	log := logging.WithComponent("pool")

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in background task: %v", r)
			}
		}()
		return task.run(context.Background())
	}()
	if err == nil {
		return
	}

	log.Error().Int("worker", id).Str("task", task.name).Err(err).Msg("background task failed")
}
