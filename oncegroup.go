package segmap

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/llxisdsh/pb"
)

// inflight is a running or finished onceGroup.do call.
type inflight[V any] struct {
	wg   sync.WaitGroup
	val  V
	err  error
	dups atomic.Int32
}

// onceGroup suppresses duplicate executions per key: while a call for a key
// runs, later callers for the same key wait for it and share its result.
// The zero value is ready to use.
type onceGroup[K comparable, V any] struct {
	calls pb.MapOf[K, *inflight[V]]
}

// do runs fn unless a call for key is already in flight, in which case it
// waits for that call. shared reports whether the result went to more than
// one caller. A panic in fn is re-raised in every caller; runtime.Goexit in
// fn makes waiting callers Goexit too.
func (g *onceGroup[K, V]) do(
	key K,
	fn func() (V, error),
) (v V, err error, shared bool) {
	var c *inflight[V]
	_, loaded := g.calls.ProcessEntry(
		key,
		func(l *pb.EntryOf[K, *inflight[V]]) (*pb.EntryOf[K, *inflight[V]], *inflight[V], bool) {
			if l != nil {
				c = l.Value
				c.dups.Add(1)
				return l, c, true
			}
			c = &inflight[V]{}
			c.wg.Add(1)
			return &pb.EntryOf[K, *inflight[V]]{Value: c}, c, false
		},
	)
	if loaded {
		c.wg.Wait()
		var e *panicError
		if errors.As(c.err, &e) {
			panic(e)
		} else if errors.Is(c.err, errGoexit) {
			runtime.Goexit()
		}
		return c.val, c.err, true
	}

	g.run(c, key, fn)
	return c.val, c.err, c.dups.Load() > 0
}

// run executes fn for the primary caller, then releases the waiters and
// removes key so the next do runs fn again.
func (g *onceGroup[K, V]) run(c *inflight[V], key K, fn func() (V, error)) {
	normalReturn := false
	recovered := false

	defer func() {
		if !normalReturn && !recovered {
			c.err = errGoexit
		}
		c.wg.Done()
		g.calls.Delete(key)

		var e *panicError
		if errors.As(c.err, &e) {
			panic(e)
		}
	}()

	// The inner recover tells a panic from runtime.Goexit.
	func() {
		defer func() {
			if !normalReturn {
				if r := recover(); r != nil {
					c.err = newPanicError(r)
				}
			}
		}()

		c.val, c.err = fn()
		normalReturn = true
	}()

	if !normalReturn {
		recovered = true
	}
}

// panicError is a value recovered from a panic in a onceGroup function,
// with the stack of the goroutine that panicked.
type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("%v\n\n%s", p.value, p.stack)
}

// Unwrap returns the recovered value when it is an error, so errors.Is sees
// through a re-raised ErrNilValue.
func (p *panicError) Unwrap() error {
	if err, ok := p.value.(error); ok {
		return err
	}
	return nil
}

func newPanicError(v any) error {
	stack := debug.Stack()
	// Drop the "goroutine N [status]:" line.
	if line := bytes.IndexByte(stack, '\n'); line >= 0 {
		stack = stack[line+1:]
	}
	return &panicError{value: v, stack: stack}
}

var errGoexit = errors.New("runtime.Goexit was called")
