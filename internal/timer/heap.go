package timer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// TimerTask represents a task scheduled for future execution
type TimerTask struct {
	ID       string
	ExpiryAt time.Time
	Callback func()
	index    int // index in the heap (for heap.Interface)
}

// timerHeap is a min-heap of TimerTasks ordered by ExpiryAt
type timerHeap []*TimerTask

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	return h[i].ExpiryAt.Before(h[j].ExpiryAt)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	n := len(*h)
	task := x.(*TimerTask)
	task.index = n
	*h = append(*h, task)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil  // avoid memory leak
	task.index = -1 // for safety
	*h = old[0 : n-1]
	return task
}

// TimerManager runs one-shot and recurring tasks from a single min-heap.
type TimerManager struct {
	clock   clockwork.Clock
	heap    timerHeap
	mu      sync.Mutex
	wakeup  chan struct{}
	tasks   map[string]*TimerTask // for O(1) lookup by ID
	running sync.WaitGroup
	stopped bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewTimerManager creates a timer manager driven by clock. A nil clock uses real time.
func NewTimerManager(clock clockwork.Clock) *TimerManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	tm := &TimerManager{
		clock:  clock,
		heap:   make(timerHeap, 0),
		wakeup: make(chan struct{}, 1),
		tasks:  make(map[string]*TimerTask),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	heap.Init(&tm.heap)
	return tm
}

// Start starts the scheduler goroutine
func (tm *TimerManager) Start() {
	go tm.run()
}

// Stop stops scheduling and waits for callbacks already running to return.
func (tm *TimerManager) Stop() {
	tm.mu.Lock()
	if tm.stopped {
		tm.mu.Unlock()
		return
	}
	tm.stopped = true
	close(tm.stopCh)
	tm.mu.Unlock()

	<-tm.done
	tm.running.Wait()
}

// Schedule adds a new task to be executed at the specified time
func (tm *TimerManager) Schedule(id string, expiryAt time.Time, callback func()) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.stopped {
		return ErrManagerStopped
	}

	// Remove existing task with same ID if present
	if existing, ok := tm.tasks[id]; ok {
		heap.Remove(&tm.heap, existing.index)
		delete(tm.tasks, id)
	}

	task := &TimerTask{
		ID:       id,
		ExpiryAt: expiryAt,
		Callback: callback,
	}

	heap.Push(&tm.heap, task)
	tm.tasks[id] = task

	// Wake up the scheduler if this is the earliest task
	if tm.heap[0] == task {
		select {
		case tm.wakeup <- struct{}{}:
		default:
		}
	}

	return nil
}

// After schedules callback to run once, d from now.
func (tm *TimerManager) After(id string, d time.Duration, callback func()) error {
	return tm.Schedule(id, tm.clock.Now().Add(d), callback)
}

// Every runs callback every interval, first after one interval. The next run
// is scheduled when the previous one returns, so runs never overlap.
func (tm *TimerManager) Every(id string, interval time.Duration, callback func()) error {
	var tick func()
	tick = func() {
		callback()
		_ = tm.After(id, interval, tick) // fails only once stopped
	}
	return tm.After(id, interval, tick)
}

// Cancel removes a scheduled task
func (tm *TimerManager) Cancel(id string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task, ok := tm.tasks[id]
	if !ok {
		return false
	}

	heap.Remove(&tm.heap, task.index)
	delete(tm.tasks, id)
	return true
}

// run is the main scheduler loop
func (tm *TimerManager) run() {
	defer close(tm.done)

	for {
		tm.mu.Lock()

		if tm.stopped {
			tm.mu.Unlock()
			return
		}

		if tm.heap.Len() == 0 {
			tm.mu.Unlock()
			select {
			case <-tm.wakeup:
				continue
			case <-tm.stopCh:
				return
			}
		}

		nextTask := tm.heap[0]
		waitDuration := nextTask.ExpiryAt.Sub(tm.clock.Now())

		if waitDuration <= 0 {
			// Task is ready to execute
			task := heap.Pop(&tm.heap).(*TimerTask)
			delete(tm.tasks, task.ID)

			tm.running.Add(1)
			go func() {
				defer tm.running.Done()
				task.Callback()
			}()

			tm.mu.Unlock()
			continue
		}

		tm.mu.Unlock()

		// Wait for either timeout or wakeup signal
		timer := tm.clock.NewTimer(waitDuration)
		select {
		case <-timer.Chan():
			// Time to check for expired tasks
		case <-tm.wakeup:
			// New task added or existing task updated
			timer.Stop()
		case <-tm.stopCh:
			timer.Stop()
			return
		}
	}
}

// Stats returns statistics about the timer manager
func (tm *TimerManager) Stats() TimerStats {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	return TimerStats{
		ScheduledTasks: len(tm.tasks),
	}
}

// TimerStats contains statistics about the timer manager
type TimerStats struct {
	ScheduledTasks int
}

var (
	ErrManagerStopped = &TimerError{"timer manager is stopped"}
)

// TimerError represents a timer error
type TimerError struct {
	msg string
}

func (e *TimerError) Error() string {
	return e.msg
}
