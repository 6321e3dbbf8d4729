// Package scheduler runs MOO tasks against a worldstate.World: it owns
// task identity, suspend/resume/fork, tick and wall-clock limits, and the
// commit-validate-retry loop against the MVCC store underneath. It knows
// nothing about bytecode dispatch — a Task's Body is just a function from
// a transaction to a result — so it can be built and tested independently
// of the VM/builtins adaptation that calls into it.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"moocore/types"
	"moocore/worldstate"
)

// TaskID identifies one task for the lifetime of a scheduler.
type TaskID int64

// TaskState is where a task currently sits in its lifecycle.
type TaskState int

const (
	TaskQueued TaskState = iota
	TaskRunning
	TaskSuspended
	TaskReadingInput
	TaskDone
	TaskKilled
)

func (s TaskState) String() string {
	switch s {
	case TaskQueued:
		return "queued"
	case TaskRunning:
		return "running"
	case TaskSuspended:
		return "suspended"
	case TaskReadingInput:
		return "reading"
	case TaskDone:
		return "done"
	case TaskKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// Body is the unit of work a task runs. It receives a Handle bound to a
// fresh transaction on every attempt (including retries after an MVCC
// conflict) and returns the task's result or an error. The Handle is how
// a running body suspends, reads input, or forks a child task — those
// operations need the scheduler's run loop, not just the transaction.
type Body func(h *Handle) (types.Value, error)

// Handle is what a task body uses to interact with the scheduler while it
// runs: the transaction for this attempt, plus suspend/read/fork.
type Handle struct {
	sched *Scheduler
	task  *Task
	tx    *worldstate.Transaction
}

// Tx returns this attempt's transaction.
func (h *Handle) Tx() *worldstate.Transaction { return h.tx }

// Scheduler returns the scheduler running this task, for builtins that act
// on OTHER tasks by id (kill_task, resume, queued_tasks) rather than just
// the current one.
func (h *Handle) Scheduler() *Scheduler { return h.sched }

// Suspend parks the task until d has elapsed (or forever if d <= 0, until
// an explicit Resume), returning whatever value a later Resume call
// delivers.
func (h *Handle) Suspend(d time.Duration) types.Value {
	h.sched.setState(h.task, TaskSuspended)
	if d > 0 {
		h.sched.wheel.schedule(h.task.ID, d)
	}
	select {
	case v := <-h.task.resumeCh:
		return v
	case <-h.task.killCh:
		return nil
	}
}

// Read suspends the task until a line of input arrives from its player
// (via Scheduler.DeliverLine) or the task is killed.
func (h *Handle) Read() types.Value {
	h.sched.setState(h.task, TaskReadingInput)
	h.sched.setReading(h.task.Player, h.task.ID)
	select {
	case v := <-h.task.resumeCh:
		return v
	case <-h.task.killCh:
		return nil
	}
}

// Fork schedules a child task under the same player and records the
// parent/child relationship for task_stack()-style introspection.
func (h *Handle) Fork(body Body) (TaskID, error) {
	id, err := h.sched.Spawn(h.task.Player, body)
	if err != nil {
		return 0, err
	}
	h.sched.tasksMu.Lock()
	h.task.Forked = append(h.task.Forked, id)
	if child, ok := h.sched.tasks[id]; ok {
		child.Parent = h.task.ID
	}
	h.sched.tasksMu.Unlock()
	return id, nil
}

// Task is one scheduled unit of execution.
type Task struct {
	ID       TaskID
	Player   types.ObjID
	State    TaskState
	Body     Body
	Parent   TaskID
	Forked   []TaskID
	Result   types.Value
	Err      error
	Attempts int

	calls *callStack

	resumeCh chan types.Value
	killCh   chan struct{}
}

// SchedulerError is the taxonomy of errors the scheduler itself raises
// (as opposed to errors a task's own body produces).
type SchedulerError struct {
	Code    string
	Message string
}

func (e *SchedulerError) Error() string { return fmt.Sprintf("scheduler: %s: %s", e.Code, e.Message) }

var (
	ErrTaskLimitReached = &SchedulerError{Code: "task_limit", Message: "maximum number of queued tasks reached"}
	ErrUnknownTask      = &SchedulerError{Code: "unknown_task", Message: "no task with that id"}
	ErrNotSuspended     = &SchedulerError{Code: "not_suspended", Message: "task is not suspended"}
	ErrMaxRetries       = &SchedulerError{Code: "max_retries", Message: "task aborted after repeated commit conflicts"}
)

// taskMsg, clientMsg, workerMsg and timerExpiredMsg are the messages the
// scheduler's run loop selects over. Spawn, resume, kill, input delivery,
// completion and timer expiry are handled on the single run-loop goroutine,
// matching the teacher's single-threaded execution model (server/scheduler.go's
// `run()`), just message-driven rather than poll-driven. A running body's own
// Suspend and Read calls update its state from the worker goroutine, under
// tasksMu.
type taskMsg struct {
	kind   string // "spawn", "resume", "kill"
	task   *Task
	value  types.Value
	taskID TaskID
	result chan error
}

type clientMsg struct {
	player types.ObjID
	line   string
	result chan bool // true if a reading task consumed the line
}

type workerMsg struct {
	taskID TaskID
	value  types.Value
	err    error
}

type timerExpiredMsg struct {
	taskID TaskID
}

// Config controls retry and concurrency behavior.
type Config struct {
	MaxRetries  int
	MaxWorkers  int
	TickLimit   int
	TimeLimit   time.Duration
}

func defaultConfig() Config {
	return Config{MaxRetries: 5, MaxWorkers: 8, TickLimit: 60_000_000, TimeLimit: 5 * time.Second}
}

// Scheduler owns task identity and the run loop.
type Scheduler struct {
	world *worldstate.World
	log   *zap.Logger
	cfg   Config

	taskMsgs    chan taskMsg
	clientMsgs  chan clientMsg
	workerMsgs  chan workerMsg
	timerMsgs   chan timerExpiredMsg

	wheel *timerWheel

	tasksMu   sync.RWMutex
	tasks     map[TaskID]*Task
	nextID    TaskID
	readingOn map[types.ObjID]TaskID

	group *errgroup.Group
	stop  chan struct{}
	done  chan struct{}
}

// New creates a Scheduler over world. log may be nil.
func New(world *worldstate.World, cfg Config, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxWorkers <= 0 {
		cfg = defaultConfig()
	}
	s := &Scheduler{
		world:      world,
		log:        log,
		cfg:        cfg,
		taskMsgs:   make(chan taskMsg, 64),
		clientMsgs: make(chan clientMsg, 64),
		workerMsgs: make(chan workerMsg, 64),
		timerMsgs:  make(chan timerExpiredMsg, 64),
		tasks:      make(map[TaskID]*Task),
		readingOn:  make(map[types.ObjID]TaskID),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	group := new(errgroup.Group)
	group.SetLimit(cfg.MaxWorkers)
	s.group = group
	s.wheel = newTimerWheel(func(id TaskID) {
		select {
		case s.timerMsgs <- timerExpiredMsg{taskID: id}:
		case <-s.stop:
		}
	})
	return s
}

// Start launches the scheduler's run loop and timer wheel in background
// goroutines.
func (s *Scheduler) Start(ctx context.Context) {
	go s.wheel.run(ctx)
	go s.runLoop(ctx)
}

// Stop signals the run loop to exit and waits for in-flight task
// goroutines to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
	_ = s.group.Wait()
}

// Spawn schedules a new top-level task for player and returns its id
// immediately; the task itself runs asynchronously on the scheduler's
// worker pool.
func (s *Scheduler) Spawn(player types.ObjID, body Body) (TaskID, error) {
	result := make(chan error, 1)
	t := &Task{Player: player, Body: body, calls: newCallStack(), resumeCh: make(chan types.Value, 1), killCh: make(chan struct{})}
	select {
	case s.taskMsgs <- taskMsg{kind: "spawn", task: t, result: result}:
	case <-s.stop:
		return 0, fmt.Errorf("scheduler: stopped")
	}
	if err := <-result; err != nil {
		return 0, err
	}
	return t.ID, nil
}

// Resume delivers a value to a suspended or read()ing task, waking it.
func (s *Scheduler) Resume(id TaskID, value types.Value) error {
	result := make(chan error, 1)
	s.taskMsgs <- taskMsg{kind: "resume", taskID: id, value: value, result: result}
	return <-result
}

// Kill aborts a task, whatever state it is in.
func (s *Scheduler) Kill(id TaskID) error {
	result := make(chan error, 1)
	s.taskMsgs <- taskMsg{kind: "kill", taskID: id, result: result}
	return <-result
}

// DeliverLine routes a line of input to whichever task is read()ing from
// player, if any. Returns true if a task consumed it.
func (s *Scheduler) DeliverLine(player types.ObjID, line string) bool {
	result := make(chan bool, 1)
	s.clientMsgs <- clientMsg{player: player, line: line, result: result}
	return <-result
}

// TaskState reports the current state of a task, for introspection
// builtins like queued_tasks()/task_stack(). Reads tasksMu rather than
// round-tripping through the run loop, so callers get an eventually
// consistent snapshot instead of blocking behind whatever task is
// currently executing.
func (s *Scheduler) TaskState(id TaskID) (TaskState, bool) {
	s.tasksMu.RLock()
	defer s.tasksMu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return 0, false
	}
	return t.State, true
}

// TaskInfo is a read-only snapshot of one task, for introspection builtins
// that need more than just its state (queued_tasks(), task_stack()).
type TaskInfo struct {
	ID        TaskID
	Player    types.ObjID
	State     TaskState
	StartTime time.Time
	Frames    []ActivationFrame
}

// TaskInfo reports a snapshot of task id's current state. Returns false if
// no such task is known (already reaped, or never existed).
func (s *Scheduler) TaskInfo(id TaskID) (TaskInfo, bool) {
	s.tasksMu.RLock()
	t, ok := s.tasks[id]
	s.tasksMu.RUnlock()
	if !ok {
		return TaskInfo{}, false
	}
	return TaskInfo{
		ID:        t.ID,
		Player:    t.Player,
		State:     t.State,
		StartTime: t.calls.started,
		Frames:    t.calls.snapshot(),
	}, true
}

// ListTasks returns the ids of every task the scheduler currently knows
// about, for queued_tasks()-style introspection.
func (s *Scheduler) ListTasks() []TaskID {
	s.tasksMu.RLock()
	defer s.tasksMu.RUnlock()
	ids := make([]TaskID, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	return ids
}
