package scheduler

import (
	"context"
	"testing"
	"time"

	"moocore/storage"
	"moocore/types"
	"moocore/worldstate"
)

func newTestScheduler(t *testing.T) (*Scheduler, context.CancelFunc) {
	t.Helper()
	w := worldstate.New(storage.NewStore(), nil)
	s := New(w, Config{MaxRetries: 3, MaxWorkers: 4}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	return s, cancel
}

func waitForState(t *testing.T, s *Scheduler, id TaskID, want TaskState, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if st, ok := s.TaskState(id); ok && st == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	st, _ := s.TaskState(id)
	t.Fatalf("task %d never reached state %v, last seen %v", id, want, st)
}

func TestSpawnAndCompleteSimpleTask(t *testing.T) {
	s, cancel := newTestScheduler(t)
	defer cancel()
	defer s.Stop()

	id, err := s.Spawn(types.ObjID(1), func(h *Handle) (types.Value, error) {
		return types.NewInt(42), nil
	})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	waitForState(t, s, id, TaskDone, time.Second)
}

func TestTaskCanSuspendAndResume(t *testing.T) {
	s, cancel := newTestScheduler(t)
	defer cancel()
	defer s.Stop()

	id, err := s.Spawn(types.ObjID(1), func(h *Handle) (types.Value, error) {
		v := h.Suspend(0)
		if v == nil {
			return types.NewInt(-1), nil
		}
		return v, nil
	})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	waitForState(t, s, id, TaskSuspended, time.Second)

	if err := s.Resume(id, types.NewInt(7)); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	waitForState(t, s, id, TaskDone, time.Second)
}

func TestTaskReadConsumesDeliveredLine(t *testing.T) {
	s, cancel := newTestScheduler(t)
	defer cancel()
	defer s.Stop()

	player := types.ObjID(9)
	id, err := s.Spawn(player, func(h *Handle) (types.Value, error) {
		return h.Read(), nil
	})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	waitForState(t, s, id, TaskReadingInput, time.Second)

	if !s.DeliverLine(player, "hello") {
		t.Fatal("expected DeliverLine to find the reading task")
	}
	waitForState(t, s, id, TaskDone, time.Second)
}

func TestForkRecordsParentChild(t *testing.T) {
	s, cancel := newTestScheduler(t)
	defer cancel()
	defer s.Stop()

	childDone := make(chan struct{})
	_, err := s.Spawn(types.ObjID(1), func(h *Handle) (types.Value, error) {
		_, ferr := h.Fork(func(ch *Handle) (types.Value, error) {
			close(childDone)
			return types.NewInt(1), nil
		})
		if ferr != nil {
			t.Errorf("fork failed: %v", ferr)
		}
		return types.NewInt(0), nil
	})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	select {
	case <-childDone:
	case <-time.After(time.Second):
		t.Fatal("forked task never ran")
	}
}

func TestCreateObjectThroughTaskTransaction(t *testing.T) {
	s, cancel := newTestScheduler(t)
	defer cancel()
	defer s.Stop()

	id, err := s.Spawn(types.ObjID(1), func(h *Handle) (types.Value, error) {
		objID, cerr := h.Tx().CreateObject(1, nil, types.ObjNothing)
		if cerr != nil {
			return nil, cerr
		}
		return types.NewInt(int64(objID)), nil
	})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	waitForState(t, s, id, TaskDone, time.Second)
}
