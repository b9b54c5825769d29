package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/geoyee/globetile/internal/calculator"
	"github.com/geoyee/globetile/internal/model"
	"github.com/geoyee/globetile/internal/pipeline"
)

// TaskStatus is the lifecycle state of a prefetch task.
type TaskStatus string

const (
	StatusPending  TaskStatus = "pending"
	StatusRunning  TaskStatus = "running"
	StatusStopped  TaskStatus = "stopped"
	StatusComplete TaskStatus = "complete"
	StatusFailed   TaskStatus = "failed"
)

// Task is one prefetch of a sector and level range.
type Task struct {
	ID        string
	Sector    model.Sector
	MinLevel  int
	MaxLevel  int
	Status    TaskStatus
	Total     int64
	Success   int64
	Failed    int64
	Skipped   int64
	StartTime time.Time
	EndTime   time.Time
	Error     string

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.RWMutex
}

// TaskView is the JSON form of a Task.
type TaskView struct {
	ID        string       `json:"id"`
	Sector    model.Sector `json:"sector"`
	MinLevel  int          `json:"min_level"`
	MaxLevel  int          `json:"max_level"`
	Status    TaskStatus   `json:"status"`
	Progress  float64      `json:"progress"`
	Total     int64        `json:"total"`
	Success   int64        `json:"success"`
	Failed    int64        `json:"failed"`
	Skipped   int64        `json:"skipped"`
	StartTime time.Time    `json:"start_time"`
	EndTime   *time.Time   `json:"end_time,omitempty"`
	Duration  string       `json:"duration,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// View returns a consistent snapshot of the task.
func (t *Task) View() TaskView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v := TaskView{
		ID:        t.ID,
		Sector:    t.Sector,
		MinLevel:  t.MinLevel,
		MaxLevel:  t.MaxLevel,
		Status:    t.Status,
		Total:     t.Total,
		Success:   t.Success,
		Failed:    t.Failed,
		Skipped:   t.Skipped,
		StartTime: t.StartTime,
		Error:     t.Error,
	}
	if t.Total > 0 {
		v.Progress = float64(t.Success+t.Failed+t.Skipped) / float64(t.Total) * 100
	}
	if !t.EndTime.IsZero() {
		end := t.EndTime
		v.EndTime = &end
		v.Duration = end.Sub(t.StartTime).String()
	}
	return v
}

// TaskManager runs prefetch tasks against one pipeline.
type TaskManager struct {
	pipeline *pipeline.Pipeline
	tasks    map[string]*Task
	mu       sync.RWMutex
}

// NewTaskManager creates a task manager prefetching through p.
func NewTaskManager(p *pipeline.Pipeline) *TaskManager {
	return &TaskManager{
		pipeline: p,
		tasks:    make(map[string]*Task),
	}
}

// CreateTask registers a pending task. It reports false if id is taken.
func (tm *TaskManager) CreateTask(id string, sector model.Sector, minLevel, maxLevel int) (*Task, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if _, ok := tm.tasks[id]; ok {
		return nil, false
	}
	task := &Task{
		ID:       id,
		Sector:   sector,
		MinLevel: minLevel,
		MaxLevel: maxLevel,
		Status:   StatusPending,
		done:     make(chan struct{}),
	}
	tm.tasks[id] = task
	return task, true
}

// GetTask returns the task with id.
func (tm *TaskManager) GetTask(id string) (*Task, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	task, ok := tm.tasks[id]
	return task, ok
}

// ListTasks returns every task ordered by id.
func (tm *TaskManager) ListTasks() []*Task {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	tasks := make([]*Task, 0, len(tm.tasks))
	for _, task := range tm.tasks {
		tasks = append(tasks, task)
	}
	return tasks
}

// DeleteTask stops a running task and forgets it.
func (tm *TaskManager) DeleteTask(id string) bool {
	tm.mu.Lock()
	task, ok := tm.tasks[id]
	delete(tm.tasks, id)
	tm.mu.Unlock()
	if ok {
		task.Stop()
	}
	return ok
}

// StopAll cancels every running task and waits for them.
func (tm *TaskManager) StopAll() {
	for _, task := range tm.ListTasks() {
		task.Stop()
		task.Wait()
	}
}

// Start marks task running and executes it in the background.
func (tm *TaskManager) Start(ctx context.Context, task *Task) {
	ctx, cancel := context.WithCancel(ctx)
	task.mu.Lock()
	task.Status = StatusRunning
	task.StartTime = time.Now()
	task.cancel = cancel
	task.mu.Unlock()
	go tm.run(ctx, cancel, task)
}

func (tm *TaskManager) run(ctx context.Context, cancel context.CancelFunc, task *Task) {
	defer close(task.done)
	defer cancel()

	var err error
	defer func() {
		task.mu.Lock()
		defer task.mu.Unlock()
		task.EndTime = time.Now()
		switch {
		case task.Status == StatusStopped:
		case err != nil && ctx.Err() != nil:
			task.Status = StatusStopped
		case err != nil:
			task.Status = StatusFailed
			task.Error = err.Error()
		case task.Failed > 0 && task.Success == 0:
			task.Status = StatusFailed
		default:
			task.Status = StatusComplete
		}
	}()

	list, err := calculator.CalculateTiles(tm.pipeline.Tiling, task.Sector, task.MinLevel, task.MaxLevel)
	if err != nil {
		return
	}
	task.mu.Lock()
	task.Total = int64(len(list))
	task.mu.Unlock()

	_, err = tm.pipeline.Prefetch(ctx, task.Sector, task.MinLevel, task.MaxLevel, func(_ model.Tile, terr error) {
		task.mu.Lock()
		defer task.mu.Unlock()
		switch {
		case errors.Is(terr, pipeline.ErrSkipped):
			task.Skipped++
		case terr != nil:
			task.Failed++
		default:
			task.Success++
		}
	})
}

// Stop cancels a running task. It reports false if the task was not running.
func (t *Task) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Status != StatusRunning {
		return false
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.Status = StatusStopped
	return true
}

// Wait blocks until a started task has finished.
func (t *Task) Wait() {
	t.mu.RLock()
	started := t.Status != StatusPending
	t.mu.RUnlock()
	if started {
		<-t.done
	}
}
