package scheduler

import (
	"sync"
	"time"

	"moocore/types"
)

// ActivationFrame is one verb call on a task's call stack, the unit
// callers() and task_stack() report. Kept on Task (not the VM's own
// StackFrame) since a suspended task's call stack must survive the VM
// instance that produced it being torn down between attempts.
type ActivationFrame struct {
	This            types.ObjID
	ThisValue       types.Value
	Player          types.ObjID
	Programmer      types.ObjID
	Caller          types.ObjID
	Verb            string
	VerbLoc         types.ObjID
	Args            []types.Value
	LineNumber      int
	SourceLine      string
	ServerInitiated bool
}

// ToList renders a frame the way callers() does: {this, verb, programmer,
// verb_loc, player, line_number}.
func (a ActivationFrame) ToList() types.Value {
	thisVal := types.Value(types.NewObj(a.This))
	if a.ThisValue != nil {
		thisVal = a.ThisValue
	}
	return types.NewList([]types.Value{
		thisVal,
		types.NewStr(a.Verb),
		types.NewObj(a.Programmer),
		types.NewObj(a.VerbLoc),
		types.NewObj(a.Player),
		types.NewInt(int64(a.LineNumber)),
	})
}

// ToMap renders a frame the way task_stack() does.
func (a ActivationFrame) ToMap() types.Value {
	return types.NewMap([][2]types.Value{
		{types.NewStr("this"), types.NewObj(a.This)},
		{types.NewStr("verb"), types.NewStr(a.Verb)},
		{types.NewStr("programmer"), types.NewObj(a.Programmer)},
		{types.NewStr("verb_loc"), types.NewObj(a.VerbLoc)},
		{types.NewStr("player"), types.NewObj(a.Player)},
		{types.NewStr("line_number"), types.NewInt(int64(a.LineNumber))},
	})
}

// CommandEnv holds the parsed command-line environment (argstr, dobj, etc.)
// a command-dispatched task makes available as built-in verb-call locals,
// mirroring the teacher's server/task.go Task fields of the same names.
type CommandEnv struct {
	Argstr  string
	Dobjstr string
	Iobjstr string
	Prepstr string
	Dobj    types.ObjID
	Iobj    types.ObjID
}

// callStack is the mutable per-task bookkeeping the VM drives as it enters
// and leaves verb calls: the activation stack itself plus task-local
// storage (set_task_local/task_local), the command environment, and start
// time, guarded separately from Scheduler.tasksMu since the executing
// worker goroutine touches it far more often than the run loop does.
type callStack struct {
	mu        sync.RWMutex
	frames    []ActivationFrame
	taskLocal types.Value
	cmdEnv    CommandEnv
	started   time.Time
}

func newCallStack() *callStack {
	return &callStack{taskLocal: types.NewEmptyMap(), started: time.Now()}
}

func (c *callStack) push(frame ActivationFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
}

func (c *callStack) pop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) > 0 {
		c.frames = c.frames[:len(c.frames)-1]
	}
}

func (c *callStack) snapshot() []ActivationFrame {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ActivationFrame, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *callStack) updateLineNumbers(lines []int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.frames {
		if i < len(lines) {
			c.frames[i].LineNumber = lines[i]
		}
	}
}

func (c *callStack) getTaskLocal() types.Value {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.taskLocal
}

func (c *callStack) setTaskLocal(v types.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taskLocal = v
}

func (c *callStack) getCommandEnv() CommandEnv {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cmdEnv
}

func (c *callStack) setCommandEnv(env CommandEnv) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmdEnv = env
}

// PushFrame records entry into a verb call on this task's activation stack.
func (h *Handle) PushFrame(frame ActivationFrame) { h.task.calls.push(frame) }

// PopFrame records return from the innermost verb call.
func (h *Handle) PopFrame() { h.task.calls.pop() }

// CallStack returns a copy of this task's current activation stack,
// innermost call last (matching the order frames were pushed).
func (h *Handle) CallStack() []ActivationFrame { return h.task.calls.snapshot() }

// UpdateCallStackLineNumbers overwrites each frame's line number in order,
// called before a suspend or an uncaught-exception snapshot so
// introspection builtins see accurate lines.
func (h *Handle) UpdateCallStackLineNumbers(lines []int) { h.task.calls.updateLineNumbers(lines) }

// TaskLocal returns this task's task_local() storage.
func (h *Handle) TaskLocal() types.Value { return h.task.calls.getTaskLocal() }

// SetTaskLocal sets this task's set_task_local() storage.
func (h *Handle) SetTaskLocal(v types.Value) { h.task.calls.setTaskLocal(v) }

// CommandEnv returns the parsed command environment for this task, if it
// was dispatched from a parsed player command (zero value otherwise).
func (h *Handle) CommandEnv() CommandEnv { return h.task.calls.getCommandEnv() }

// SetCommandEnv records the parsed command environment for this task,
// called once by command dispatch before the task body starts running.
func (h *Handle) SetCommandEnv(env CommandEnv) { h.task.calls.setCommandEnv(env) }

// ID returns the id of the task this handle belongs to.
func (h *Handle) ID() TaskID { return h.task.ID }

// Player returns the player the task is running on behalf of.
func (h *Handle) Player() types.ObjID { return h.task.Player }

// StartTime reports when the task was first spawned (stable across
// commit-conflict retries, unlike the per-attempt transaction).
func (h *Handle) StartTime() time.Time { return h.task.calls.started }
