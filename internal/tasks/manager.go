package tasks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/juju/clock"
)

const (
	MaxLogsPerTask = 1000

	defaultTaskTimeout = 5 * time.Minute
)

type Options struct {
	Clock clock.Clock

	// Timeout bounds a single run of any task.
	Timeout time.Duration
}

// Manager runs named background tasks, either periodically or on demand.
// All runs stop when Stop is called.
type Manager struct {
	opts  Options
	tasks sync.Map

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTaskTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds a task. If interval is positive the task runs every interval.
func (m *Manager) Register(name string, interval time.Duration, fn TaskFunc) {
	task := &RunnableTask{
		Name:         name,
		Interval:     interval,
		Handler:      fn,
		clock:        m.opts.Clock,
		timeout:      m.opts.Timeout,
		registeredAt: m.opts.Clock.Now(),
		logs:         make([]LogEntry, 0),
	}
	m.tasks.Store(name, task)

	if interval > 0 {
		m.wg.Add(1)
		go m.scheduler(task)
	}
}

// Trigger starts a run of the task in the background. It fails with
// ErrAlreadyRunning if a run is in progress.
func (m *Manager) Trigger(name string) error {
	task, err := m.get(name)
	if err != nil {
		return err
	}
	if task.Running() {
		return ErrAlreadyRunning
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = task.Run(m.ctx)
	}()
	return nil
}

// RunNow runs the task and waits for it to finish.
func (m *Manager) RunNow(ctx context.Context, name string) error {
	task, err := m.get(name)
	if err != nil {
		return err
	}
	return task.Run(ctx)
}

func (m *Manager) ListStatus() []TaskStatus {
	var list []TaskStatus
	m.tasks.Range(func(key, value any) bool {
		task := value.(*RunnableTask)
		list = append(list, task.Status())
		return true
	})
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

func (m *Manager) GetLogs(name string) ([]LogEntry, error) {
	task, err := m.get(name)
	if err != nil {
		return nil, err
	}
	return task.GetLogs(), nil
}

// Stop cancels running tasks and waits for all schedulers to exit.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) get(name string) (*RunnableTask, error) {
	t, ok := m.tasks.Load(name)
	if !ok {
		return nil, UnknownTaskError{Name: name, Known: m.names()}
	}
	return t.(*RunnableTask), nil
}

func (m *Manager) names() []string {
	var names []string
	m.tasks.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

func (m *Manager) scheduler(task *RunnableTask) {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.opts.Clock.After(task.Interval):
			_ = task.Run(m.ctx)
		}
	}
}
