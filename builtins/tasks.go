package builtins

import (
	"time"

	"moocore/scheduler"
	"moocore/types"
	"moocore/worldstate"
)

// Task management builtins, rebased onto the scheduler package: a task
// attempt's own Handle (ctx.Task) covers single-task operations
// (suspend/callers/caller_perms), while multi-task operations
// (kill_task/resume/queued_tasks) need the Scheduler itself (ctx.Scheduler),
// since a Handle only ever acts on its own task.

// handleFromCtx downcasts ctx.Task to the running scheduler.Handle.
func handleFromCtx(ctx *types.TaskContext) (*scheduler.Handle, bool) {
	h, ok := ctx.Task.(*scheduler.Handle)
	return h, ok
}

// schedulerFromCtx downcasts ctx.Scheduler to the *scheduler.Scheduler
// running this task, for builtins that act on OTHER tasks by id.
func schedulerFromCtx(ctx *types.TaskContext) (*scheduler.Scheduler, bool) {
	s, ok := ctx.Scheduler.(*scheduler.Scheduler)
	return s, ok
}

// defaultBgTicks is the obsolete ToastStunt per-task background tick quota
// that queued_tasks() still reports for compatibility, even though this
// scheduler enforces ticks differently.
const defaultBgTicks = 30000

// taskInfoToQueuedTaskInfo renders a scheduler.TaskInfo the way
// queued_tasks() does: {task_id, start_time, clock_id, bg_ticks,
// programmer, verb_loc, verb_name, line, this, bytes}.
func taskInfoToQueuedTaskInfo(info scheduler.TaskInfo) types.Value {
	verbName := ""
	var verbLoc types.ObjID = types.ObjNothing
	var lineNumber int
	var thisObj types.ObjID = types.ObjNothing
	programmer := info.Player

	if len(info.Frames) > 0 {
		top := info.Frames[len(info.Frames)-1]
		verbName = top.Verb
		verbLoc = top.VerbLoc
		lineNumber = top.LineNumber
		programmer = top.Programmer
		thisObj = top.This
	}

	return types.NewList([]types.Value{
		types.NewInt(int64(info.ID)),
		types.NewInt(info.StartTime.Unix()),
		types.NewInt(0), // obsolete clock id
		types.NewInt(defaultBgTicks),
		types.NewObj(programmer),
		types.NewObj(verbLoc),
		types.NewStr(verbName),
		types.NewInt(int64(lineNumber)),
		types.NewObj(thisObj),
		types.NewInt(0), // bytes, not tracked
	})
}

// builtinQueuedTasks: queued_tasks() -> LIST
func builtinQueuedTasks(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	sched, ok := schedulerFromCtx(ctx)
	if !ok {
		return types.Ok(types.NewList([]types.Value{}))
	}

	result := make([]types.Value, 0)
	for _, id := range sched.ListTasks() {
		info, ok := sched.TaskInfo(id)
		if !ok {
			continue
		}
		if info.State == scheduler.TaskDone || info.State == scheduler.TaskKilled {
			continue
		}
		if !ctx.IsWizard && info.Player != ctx.Programmer {
			continue
		}
		result = append(result, taskInfoToQueuedTaskInfo(info))
	}
	return types.Ok(types.NewList(result))
}

// builtinKillTask: kill_task(task_id) -> none
func builtinKillTask(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	taskIDVal, ok := args[0].(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	sched, ok := schedulerFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVARG)
	}

	id := scheduler.TaskID(taskIDVal.Val)
	info, ok := sched.TaskInfo(id)
	if !ok {
		return types.Err(types.E_INVARG)
	}
	if !ctx.IsWizard && info.Player != ctx.Programmer {
		return types.Err(types.E_PERM)
	}
	if err := sched.Kill(id); err != nil {
		return types.Err(types.E_INVARG)
	}
	return types.Ok(types.NewInt(0))
}

// builtinSuspend: suspend([seconds]) -> value
// Blocks the task's own goroutine until a later resume() (or the timer
// wheel, for a timed suspend) delivers a value.
func builtinSuspend(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) > 1 {
		return types.Err(types.E_ARGS)
	}
	h, ok := handleFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVARG)
	}

	var seconds float64
	if len(args) == 1 {
		switch v := args[0].(type) {
		case types.IntValue:
			seconds = float64(v.Val)
		case types.FloatValue:
			seconds = v.Val
		default:
			return types.Err(types.E_TYPE)
		}
	}

	duration := time.Duration(seconds * float64(time.Second))
	value := h.Suspend(duration)
	if value == nil {
		value = types.NewInt(0)
	}
	return types.Ok(value)
}

// builtinResume: resume(task_id [, value]) -> none
func builtinResume(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 1 || len(args) > 2 {
		return types.Err(types.E_ARGS)
	}
	taskIDVal, ok := args[0].(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	var value types.Value = types.NewInt(0)
	if len(args) == 2 {
		value = args[1]
	}

	sched, ok := schedulerFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVARG)
	}
	id := scheduler.TaskID(taskIDVal.Val)
	info, ok := sched.TaskInfo(id)
	if !ok {
		return types.Err(types.E_INVARG)
	}
	if !ctx.IsWizard && info.Player != ctx.Programmer {
		return types.Err(types.E_PERM)
	}
	if info.State != scheduler.TaskSuspended {
		return types.Err(types.E_INVARG)
	}
	if err := sched.Resume(id, value); err != nil {
		return types.Err(types.E_INVARG)
	}
	return types.Ok(types.NewInt(0))
}

// builtinSetTaskPerms: set_task_perms(who) -> none
// Wizard-only: changes the effective permission object for the rest of
// this task, re-deriving ctx.IsWizard from the store since a later
// wizard check must see the new programmer's actual flags, not the task's
// original ones.
func builtinSetTaskPerms(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	whoVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if !ctx.IsWizard {
		return types.Err(types.E_PERM)
	}

	who := whoVal.ID()
	ctx.Programmer = who
	if tx, ok := storeFromCtx(ctx); ok {
		if obj, ok := tx.GetObject(who); ok {
			ctx.IsWizard = obj.Flags.Has(worldstate.FlagWizard)
		} else {
			ctx.IsWizard = false
		}
	}
	return types.Ok(types.NewInt(0))
}

// builtinCallerPerms: caller_perms() -> OBJ
func builtinCallerPerms(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	h, ok := handleFromCtx(ctx)
	if !ok {
		return types.Ok(types.NewObj(types.ObjNothing))
	}
	stack := h.CallStack()
	if len(stack) < 2 {
		return types.Ok(types.NewObj(types.ObjNothing))
	}
	callerFrame := stack[len(stack)-2]
	return types.Ok(types.NewObj(callerFrame.Programmer))
}

// builtinCallers: callers([include_line_numbers]) -> LIST
func builtinCallers(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) > 1 {
		return types.Err(types.E_ARGS)
	}
	includeLineNumbers := true
	if len(args) == 1 {
		val, ok := args[0].(types.IntValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		includeLineNumbers = val.Val != 0
	}

	h, ok := handleFromCtx(ctx)
	if !ok {
		return types.Ok(types.NewList([]types.Value{}))
	}
	stack := h.CallStack()

	result := make([]types.Value, 0, len(stack))
	for _, frame := range stack {
		if frame.ServerInitiated {
			continue
		}
		if includeLineNumbers {
			result = append(result, frame.ToList())
			continue
		}
		frameList := frame.ToList().(types.ListValue)
		truncated := make([]types.Value, frameList.Len()-1)
		for i := 1; i < frameList.Len(); i++ {
			truncated[i-1] = frameList.Get(i)
		}
		result = append(result, types.NewList(truncated))
	}
	return types.Ok(types.NewList(result))
}

// builtinTaskStack: task_stack(task_id [, include_line_numbers]) -> LIST
// Returns the activation stack of a suspended task, each frame rendered
// the way callers() renders a map-shaped frame.
func builtinTaskStack(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 1 || len(args) > 2 {
		return types.Err(types.E_ARGS)
	}
	taskIDVal, ok := args[0].(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	sched, ok := schedulerFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVARG)
	}
	id := scheduler.TaskID(taskIDVal.Val)
	info, ok := sched.TaskInfo(id)
	if !ok {
		return types.Err(types.E_INVARG)
	}
	if !ctx.IsWizard && info.Player != ctx.Programmer {
		return types.Err(types.E_PERM)
	}

	result := make([]types.Value, 0, len(info.Frames))
	for _, frame := range info.Frames {
		if frame.ServerInitiated {
			continue
		}
		result = append(result, frame.ToMap())
	}
	return types.Ok(types.NewList(result))
}

// builtinRaise: raise(error [, message [, value]]) -> none
// Builds the 3-element {code, message, value} list HandleError augments
// with a traceback into the except clause's 4-element ERR value.
func builtinRaise(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 1 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}
	errVal, ok := args[0].(types.ErrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	message := types.NewStr(errVal.Message())
	if len(args) >= 2 {
		msgVal, ok := args[1].(types.StrValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		message = msgVal
	}
	var value types.Value = types.NewInt(0)
	if len(args) == 3 {
		value = args[2]
	}

	return types.Result{
		Flow:  types.FlowException,
		Error: errVal.Code(),
		Val:   types.NewList([]types.Value{args[0], message, value}),
	}
}
