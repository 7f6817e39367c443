package manager

import "sync"

// looper serializes asynchronous HAL callbacks for one output. Tasks
// are queued and drained by a dedicated goroutine; handlers reacquire
// the manager mutex themselves before touching state.
type looper struct {
	mu      sync.Mutex
	tasks   chan func()
	stopped bool
	wg      sync.WaitGroup
}

func newLooper() *looper {
	l := &looper{tasks: make(chan func(), 64)}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *looper) run() {
	defer l.wg.Done()
	for task := range l.tasks {
		task()
	}
}

// post enqueues a task. Tasks posted after stop are dropped.
func (l *looper) post(task func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.tasks <- task
}

// stop drains pending tasks and joins the worker.
func (l *looper) stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	close(l.tasks)
	l.mu.Unlock()
	l.wg.Wait()
}
