package scheduler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"moocore/storage"
	"moocore/types"
)

// runLoop is the single goroutine that handles spawn, resume, kill, input
// delivery, completion and timer messages, mirroring the teacher's
// single-threaded execution model: task bodies run on worker goroutines.
// A body's own Suspend and Read calls set its state and reading flag from
// the worker goroutine, under tasksMu, rather than through this loop.
func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case m := <-s.taskMsgs:
			s.handleTaskMsg(m)
		case m := <-s.clientMsgs:
			s.handleClientMsg(m)
		case m := <-s.workerMsgs:
			s.handleWorkerMsg(m)
		case m := <-s.timerMsgs:
			s.handleTimerExpired(m)
		}
	}
}

func (s *Scheduler) handleTaskMsg(m taskMsg) {
	switch m.kind {
	case "spawn":
		s.tasksMu.Lock()
		s.nextID++
		m.task.ID = s.nextID
		m.task.State = TaskQueued
		s.tasks[m.task.ID] = m.task
		s.tasksMu.Unlock()
		s.runAsync(m.task)
		m.result <- nil

	case "resume":
		s.tasksMu.RLock()
		t, ok := s.tasks[m.taskID]
		s.tasksMu.RUnlock()
		if !ok {
			m.result <- ErrUnknownTask
			return
		}
		if t.State != TaskSuspended && t.State != TaskReadingInput {
			m.result <- ErrNotSuspended
			return
		}
		s.setState(t, TaskRunning)
		if t.Player != types.ObjNothing {
			s.clearReading(t.Player)
		}
		select {
		case t.resumeCh <- m.value:
		default:
		}
		m.result <- nil

	case "kill":
		s.tasksMu.RLock()
		t, ok := s.tasks[m.taskID]
		s.tasksMu.RUnlock()
		if !ok {
			m.result <- ErrUnknownTask
			return
		}
		s.setState(t, TaskKilled)
		select {
		case <-t.killCh:
		default:
			close(t.killCh)
		}
		m.result <- nil
	}
}

func (s *Scheduler) handleClientMsg(m clientMsg) {
	s.tasksMu.RLock()
	id, ok := s.readingOn[m.player]
	s.tasksMu.RUnlock()
	if !ok {
		m.result <- false
		return
	}
	s.tasksMu.RLock()
	t := s.tasks[id]
	s.tasksMu.RUnlock()

	s.setState(t, TaskRunning)
	s.clearReading(m.player)
	select {
	case t.resumeCh <- types.NewStr(m.line):
		m.result <- true
	default:
		m.result <- false
	}
}

func (s *Scheduler) handleWorkerMsg(m workerMsg) {
	s.tasksMu.RLock()
	t, ok := s.tasks[m.taskID]
	s.tasksMu.RUnlock()
	if !ok {
		return
	}

	var conflict *storage.ConflictError
	if errors.As(m.err, &conflict) && t.Attempts < s.cfg.MaxRetries {
		t.Attempts++
		s.log.Debug("retrying task after commit conflict", zap.Int64("task", int64(t.ID)), zap.Int("attempt", t.Attempts))
		s.runAsync(t)
		return
	}

	t.Result = m.value
	t.Err = m.err
	if m.err != nil && conflict != nil {
		t.Err = ErrMaxRetries
	}
	s.setState(t, TaskDone)
	s.wheel.cancel(t.ID)
}

func (s *Scheduler) handleTimerExpired(m timerExpiredMsg) {
	s.tasksMu.RLock()
	t, ok := s.tasks[m.taskID]
	s.tasksMu.RUnlock()
	if !ok || t.State != TaskSuspended {
		return
	}
	s.setState(t, TaskRunning)
	select {
	case t.resumeCh <- nil:
	default:
	}
}

func (s *Scheduler) setState(t *Task, state TaskState) {
	s.tasksMu.Lock()
	t.State = state
	s.tasksMu.Unlock()
}

func (s *Scheduler) setReading(player types.ObjID, id TaskID) {
	s.tasksMu.Lock()
	s.readingOn[player] = id
	s.tasksMu.Unlock()
}

func (s *Scheduler) clearReading(player types.ObjID) {
	s.tasksMu.Lock()
	delete(s.readingOn, player)
	s.tasksMu.Unlock()
}

// runAsync executes t.Body on the errgroup-bounded worker pool, opening a
// fresh worldstate.Transaction for each attempt so a retried task after a
// conflict gets a clean snapshot rather than replaying against stale
// reads. s.group.Go blocks the caller (the run loop) once MaxWorkers
// bodies are already in flight, which is intentional backpressure: a
// saturated worker pool should stall new dispatch rather than let the
// queue grow unbounded.
func (s *Scheduler) runAsync(t *Task) {
	s.setState(t, TaskRunning)
	s.group.Go(func() error {
		tx := s.world.Begin()
		h := &Handle{sched: s, task: t, tx: tx}
		value, err := t.Body(h)
		if err == nil {
			if cerr := tx.Commit(); cerr != nil {
				err = cerr
			}
		} else {
			tx.Rollback()
		}

		select {
		case s.workerMsgs <- workerMsg{taskID: t.ID, value: value, err: err}:
		case <-s.stop:
		}
		return nil
	})
}
