package vm

import (
	"sync"
	"time"
)

// Monitor is a reentrant lock with wait/notify, owned by at most one Env.
type Monitor struct {
	mu      sync.Mutex
	free    *sync.Cond
	owner   *Env
	count   int
	waiters []chan struct{}
}

// NewMonitor returns an unowned monitor.
func NewMonitor() *Monitor {
	m := &Monitor{}
	m.free = sync.NewCond(&m.mu)
	return m
}

// Enter acquires the monitor for env, blocking while another env owns it.
func (m *Monitor) Enter(env *Env) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner == env {
		m.count++
		return
	}
	for m.owner != nil {
		m.free.Wait()
	}
	m.owner = env
	m.count = 1
}

// Exit releases one level of env's ownership.
func (m *Monitor) Exit(env *Env) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != env {
		return ErrIllegalMonitorState
	}
	m.count--
	if m.count == 0 {
		m.owner = nil
		m.free.Signal()
	}
	return nil
}

// HeldBy reports whether env owns the monitor.
func (m *Monitor) HeldBy(env *Env) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner == env
}

// Wait releases the monitor entirely, waits for a notification or the
// timeout (zero waits forever), then reacquires it at the same depth.
// It reports whether a notification arrived.
func (m *Monitor) Wait(env *Env, timeout time.Duration) (bool, error) {
	m.mu.Lock()
	if m.owner != env {
		m.mu.Unlock()
		return false, ErrIllegalMonitorState
	}
	depth := m.count
	m.owner = nil
	m.count = 0
	ch := make(chan struct{})
	m.waiters = append(m.waiters, ch)
	m.free.Signal()
	m.mu.Unlock()

	notified := true
	if timeout > 0 {
		t := time.NewTimer(timeout)
		select {
		case <-ch:
		case <-t.C:
			notified = false
		}
		t.Stop()
	} else {
		<-ch
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !notified {
		select {
		case <-ch:
			notified = true
		default:
			for i, w := range m.waiters {
				if w == ch {
					m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
					break
				}
			}
		}
	}
	for m.owner != nil {
		m.free.Wait()
	}
	m.owner = env
	m.count = depth
	return notified, nil
}

// Notify wakes the longest waiting env.
func (m *Monitor) Notify(env *Env) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != env {
		return ErrIllegalMonitorState
	}
	if len(m.waiters) > 0 {
		close(m.waiters[0])
		m.waiters = m.waiters[1:]
	}
	return nil
}

// NotifyAll wakes every waiting env.
func (m *Monitor) NotifyAll(env *Env) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != env {
		return ErrIllegalMonitorState
	}
	for _, w := range m.waiters {
		close(w)
	}
	m.waiters = nil
	return nil
}
