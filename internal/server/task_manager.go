package server

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sanonone/irishnsw/pkg/experiment"
)

// TaskStatus defines the possible states of a task.
type TaskStatus string

const (
	TaskStatusStarted   TaskStatus = "started"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Task is a background experiment run.
type Task struct {
	ID string

	mu       sync.RWMutex
	status   TaskStatus
	progress string
	err      string
	result   *experiment.ThresholdResult
}

// TaskManager tracks every task started by the server.
type TaskManager struct {
	tasks map[string]*Task
	mu    sync.RWMutex
	wg    sync.WaitGroup
}

// NewTaskManager creates an empty task manager.
func NewTaskManager() *TaskManager {
	return &TaskManager{
		tasks: make(map[string]*Task),
	}
}

// NewTask registers a task and returns it.
func (tm *TaskManager) NewTask() *Task {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task := &Task{
		ID:     uuid.New().String(),
		status: TaskStatusStarted,
	}
	tm.tasks[task.ID] = task
	return task
}

// GetTask retrieves a task by id.
func (tm *TaskManager) GetTask(id string) (*Task, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	task, found := tm.tasks[id]
	return task, found
}

// Go runs fn for task in a goroutine and records its outcome.
func (tm *TaskManager) Go(task *Task, fn func(t *Task) (*experiment.ThresholdResult, error)) {
	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		task.SetStatus(TaskStatusRunning)
		res, err := fn(task)
		if err != nil {
			task.SetError(err)
			return
		}
		task.complete(res)
	}()
}

// Wait blocks until every task has finished.
func (tm *TaskManager) Wait() {
	tm.wg.Wait()
}

// SetStatus updates the status of the task.
func (t *Task) SetStatus(status TaskStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
}

// SetError marks the task as failed.
func (t *Task) SetError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = TaskStatusFailed
	t.err = err.Error()
}

// SetProgress updates the progress message.
func (t *Task) SetProgress(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = message
}

func (t *Task) complete(res *experiment.ThresholdResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = TaskStatusCompleted
	t.result = res
}

// View returns a consistent copy of the task.
func (t *Task) View() TaskResponse {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TaskResponse{
		ID:              t.ID,
		Status:          t.status,
		ProgressMessage: t.progress,
		Error:           t.err,
		Result:          t.result,
	}
}
