package vm

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestMonitorReentrant(t *testing.T) {
	tv := newTestVM(t, "")
	a, b := tv.NewEnv(), tv.NewEnv()
	m := NewMonitor()

	m.Enter(a)
	m.Enter(a)
	if !m.HeldBy(a) || m.HeldBy(b) {
		t.Fatal("monitor not held by the entering env")
	}
	if err := m.Exit(b); !errors.Is(err, ErrIllegalMonitorState) {
		t.Errorf("Exit() by non-owner = %v, want ErrIllegalMonitorState", err)
	}
	if err := m.Exit(a); err != nil || !m.HeldBy(a) {
		t.Errorf("first Exit() = %v, held %v, want still held", err, m.HeldBy(a))
	}
	if err := m.Exit(a); err != nil || m.HeldBy(a) {
		t.Errorf("second Exit() = %v, held %v, want released", err, m.HeldBy(a))
	}
	if err := m.Notify(a); !errors.Is(err, ErrIllegalMonitorState) {
		t.Errorf("Notify() unowned = %v, want ErrIllegalMonitorState", err)
	}
}

func TestMonitorWaitNotify(t *testing.T) {
	tv := newTestVM(t, "")
	waiter, notifier := tv.NewEnv(), tv.NewEnv()
	m := NewMonitor()

	entered := make(chan struct{})
	var g errgroup.Group
	var notified bool
	g.Go(func() error {
		m.Enter(waiter)
		m.Enter(waiter)
		close(entered)
		ok, err := m.Wait(waiter, 0)
		notified = ok
		if err != nil {
			return err
		}
		if !m.HeldBy(waiter) {
			return errors.New("monitor not reacquired after wait")
		}
		if err := m.Exit(waiter); err != nil {
			return err
		}
		return m.Exit(waiter)
	})
	g.Go(func() error {
		<-entered
		m.Enter(notifier)
		defer m.Exit(notifier)
		return m.NotifyAll(notifier)
	})
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if !notified {
		t.Error("Wait() = false, want notified")
	}
}

func TestMonitorWaitTimeout(t *testing.T) {
	tv := newTestVM(t, "")
	env := tv.NewEnv()
	m := NewMonitor()
	m.Enter(env)
	start := time.Now()
	ok, err := m.Wait(env, 10*time.Millisecond)
	if err != nil || ok {
		t.Errorf("Wait() = %v, %v, want a timeout", ok, err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("Wait() returned before its timeout")
	}
	if !m.HeldBy(env) {
		t.Error("monitor not reacquired after timeout")
	}
}

const syncSrc = `
name: demo/Tally
fields:
  - {name: count, descriptor: I, flags: [static]}
methods:
  - name: incr
    descriptor: ()V
    flags: [public, static, synchronized]
    code: |
      getstatic demo/Tally.count I
      iconst_1
      iadd
      putstatic demo/Tally.count I
      return
  - name: incrBlock
    descriptor: (Ljava/lang/Object;)V
    flags: [public, static]
    code: |
      aload_0
      monitorenter
      getstatic demo/Tally.count I
      iconst_1
      iadd
      putstatic demo/Tally.count I
      aload_0
      monitorexit
      return
  - {name: count, descriptor: ()I, flags: [public, static], code: "getstatic demo/Tally.count I\nireturn"}
  - name: badExit
    descriptor: (Ljava/lang/Object;)V
    flags: [public, static]
    code: |
      aload_0
      monitorexit
      return
  - name: waitUnowned
    descriptor: (Ljava/lang/Object;)V
    flags: [public, static]
    code: |
      aload_0
      invokevirtual java/lang/Object.wait()V
      return
`

func TestSynchronizedMethods(t *testing.T) {
	tv := newTestVM(t, syncSrc)
	c := tv.class(t, "demo/Tally")
	incr := c.DeclaredMethod("incr", "()V")
	incrBlock := c.DeclaredMethod("incrBlock", "(Ljava/lang/Object;)V")
	lock, err := tv.newObject(tv.ObjectClass)
	if err != nil {
		t.Fatal(err)
	}

	const envs, calls = 8, 200
	var g errgroup.Group
	for i := 0; i < envs; i++ {
		env := tv.NewEnv()
		g.Go(func() error {
			for j := 0; j < calls; j++ {
				if _, err := env.Call(incr); err != nil {
					return err
				}
				if _, err := env.Call(incrBlock, RefSlot(lock)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := tv.mustCall(t, "demo/Tally", "count", "()I"); got.Int() != 2*envs*calls {
		t.Errorf("count = %d, want %d", got.Int(), 2*envs*calls)
	}
	mirror, _ := tv.Mirror(c)
	if mirror.Monitor().HeldBy(tv.env) || lock.Monitor().HeldBy(tv.env) {
		t.Error("monitor still held after the calls returned")
	}
}

func TestMonitorFaults(t *testing.T) {
	tv := newTestVM(t, syncSrc)
	lock, err := tv.newObject(tv.ObjectClass)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name, desc string
		arg        Slot
		want       string
	}{
		{"badExit", "(Ljava/lang/Object;)V", RefSlot(lock), "java/lang/IllegalMonitorStateException"},
		{"badExit", "(Ljava/lang/Object;)V", NullSlot, "java/lang/NullPointerException"},
		{"incrBlock", "(Ljava/lang/Object;)V", NullSlot, "java/lang/NullPointerException"},
		{"waitUnowned", "(Ljava/lang/Object;)V", RefSlot(lock), "java/lang/IllegalMonitorStateException"},
	}
	for _, tt := range tests {
		fault := tv.fault(t, "demo/Tally", tt.name, tt.desc, tt.arg)
		if fault.Class.Name != tt.want {
			t.Errorf("%s(%v) fault = %s, want %s", tt.name, tt.arg, fault.Class.Name, tt.want)
		}
	}
}
