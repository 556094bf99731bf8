package mediation

import (
	"sort"
	"time"
)

// Scheduler runs delayed adapter operations on the tick that first observes
// their due time. It replaces engine coroutines: nothing runs on its own
// goroutine, so delayed work stays confined to the tick loop.
type Scheduler struct {
	clock  Clock
	nextID uint64
	tasks  []*scheduledTask

	// running holds the batch being executed so CancelAll can reach it
	running []*scheduledTask
}

type scheduledTask struct {
	id        uint64
	due       time.Time
	fn        func()
	cancelled bool
}

// NewScheduler creates a scheduler reading time from clock
func NewScheduler(clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock
	}
	return &Scheduler{clock: clock}
}

// After schedules fn to run on the first Run at or after now+delay. The
// returned function cancels the task if it has not run yet.
func (s *Scheduler) After(delay time.Duration, fn func()) (cancel func()) {
	s.nextID++
	task := &scheduledTask{id: s.nextID, due: s.clock.Now().Add(delay), fn: fn}
	s.tasks = append(s.tasks, task)
	return func() { s.remove(task) }
}

// Run executes every due task in due-time order. Tasks scheduled by a running
// task are considered on the next Run.
func (s *Scheduler) Run() int {
	if len(s.tasks) == 0 {
		return 0
	}
	now := s.clock.Now()

	var due, waiting []*scheduledTask
	for _, t := range s.tasks {
		if !t.due.After(now) {
			due = append(due, t)
		} else {
			waiting = append(waiting, t)
		}
	}
	s.tasks = waiting

	sort.SliceStable(due, func(i, j int) bool { return due[i].due.Before(due[j].due) })
	s.running = due
	defer func() { s.running = nil }()

	ran := 0
	for _, t := range due {
		if t.cancelled {
			continue
		}
		t.fn()
		ran++
	}
	return ran
}

// CancelAll drops every pending task
func (s *Scheduler) CancelAll() {
	for _, t := range s.tasks {
		t.cancelled = true
	}
	for _, t := range s.running {
		t.cancelled = true
	}
	s.tasks = nil
}

// Pending returns the number of tasks not yet run
func (s *Scheduler) Pending() int {
	return len(s.tasks)
}

func (s *Scheduler) remove(task *scheduledTask) {
	task.cancelled = true
	for i, t := range s.tasks {
		if t.id == task.id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return
		}
	}
}
