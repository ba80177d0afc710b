package callrec

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/callrec/callrec/internal/crdebug"
	"github.com/callrec/callrec/internal/goid"
)

// Arg is one bound argument captured at call entry. The value is serialized
// immediately; later mutations of the underlying data are not observed.
type Arg struct {
	Name  string
	Value any
}

// Recorder writes one call row per invocation of a traced callable to its
// store, correlating nested calls on the same goroutine into a parent and
// child hierarchy. A Recorder is safe for concurrent use.
type Recorder struct {
	store  Store
	logger *log.Logger

	fmtx  sync.Mutex
	funcs map[*Func]int64

	smtx   sync.Mutex
	stacks map[int64][]int64
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger used to report storage failures. By default
// failures are logged to stderr: recording is best-effort, but a degraded
// trace should never be silent.
func WithLogger(logger *log.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// New returns a Recorder writing through the given store.
func New(store Store, options ...Option) *Recorder {
	r := &Recorder{
		store:  store,
		logger: log.New(os.Stderr, "callrec: ", log.LstdFlags),
		funcs:  map[*Func]int64{},
		stacks: map[int64][]int64{},
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Begin records the entry of one invocation of fn: it resolves the function
// identity, inserts the call row with its parent set to the innermost
// in-flight call on the current goroutine, inserts the argument rows, and
// pushes the call onto the goroutine's stack. All of that happens before the
// wrapped body runs.
//
// Begin never fails. If a store write fails, the problem is logged and
// counted, and the returned Call degrades to a no-op so the wrapped body
// still executes normally.
func (r *Recorder) Begin(fn *Func, args ...Arg) *Call {
	var (
		ctx   = context.Background()
		begin = time.Now()
		gid   = goid.ID()
	)

	fid, err := r.funcID(ctx, fn)
	if err != nil {
		r.logger.Printf("record function %s: %v", fn.info.QualName, err)
		return &Call{}
	}

	crdebug.CallCounters.Attempt.Add(1)
	id, err := r.store.InsertCall(ctx, CallStart{
		FunctionID: fid,
		ParentID:   r.peek(gid),
		Start:      begin,
		Goroutine:  gid,
		Background: gid != 1,
		Kind:       fn.info.Kind(),
		TypeName:   fn.info.TypeName,
	})
	if err != nil {
		crdebug.CallCounters.Failure.Add(1)
		r.logger.Printf("record call %s: %v", fn.info.QualName, err)
		return &Call{}
	}

	if len(args) > 0 {
		values := make([]NamedValue, len(args))
		for i, a := range args {
			values[i] = NamedValue{Name: a.Name, Value: RenderValue(a.Value)}
		}
		crdebug.ArgumentCounters.Attempt.Add(1)
		if err := r.store.InsertArguments(ctx, id, values); err != nil {
			crdebug.ArgumentCounters.Failure.Add(1)
			r.logger.Printf("record arguments %s: %v", fn.info.QualName, err)
		}
	}

	r.push(gid, id)

	return &Call{rec: r, fn: fn, id: id, gid: gid, begin: begin}
}

// end completes the call: it pops the goroutine's stack, derives the outcome
// from the recovered value and the results, and updates the call row exactly
// once. Re-raising a recovered panic is the caller's job.
func (r *Recorder) end(c *Call, recovered any, results []any) {
	r.pop(c.gid, c.id)

	outcome := CallOutcome{
		CallID:     c.id,
		DurationMS: float64(time.Since(c.begin)) / float64(time.Millisecond),
	}

	failed := false
	switch {
	case recovered != nil:
		typ, msg := describePanic(recovered)
		tb := formatStack()
		outcome.ExceptionType, outcome.ExceptionMessage, outcome.Traceback = &typ, &msg, &tb
		failed = true

	case c.fn.info.ErrResult && len(results) > 0:
		if err, ok := results[len(results)-1].(error); ok && err != nil {
			typ, msg := typeName(err), err.Error()
			outcome.ExceptionType, outcome.ExceptionMessage = &typ, &msg
			failed = true
		} else {
			// The error slot is nil: drop it from the rendered results.
			results = results[:len(results)-1]
		}
	}

	if !failed {
		value := RenderResults(results)
		outcome.ReturnValue = &value
	}

	crdebug.CompleteCounters.Attempt.Add(1)
	if err := r.store.CompleteCall(context.Background(), outcome); err != nil {
		crdebug.CompleteCounters.Failure.Add(1)
		r.logger.Printf("record outcome %s: %v", c.fn.info.QualName, err)
	}
}

//
//
//

// funcID resolves the persisted identity behind fn, inserting it on first
// use. Resolution is serialized so that concurrent first calls to the same
// declaration produce a single row.
func (r *Recorder) funcID(ctx context.Context, fn *Func) (int64, error) {
	r.fmtx.Lock()
	defer r.fmtx.Unlock()

	if id, ok := r.funcs[fn]; ok {
		return id, nil
	}

	crdebug.FunctionCounters.Attempt.Add(1)
	id, err := r.store.InsertFunction(ctx, fn.info)
	if err != nil {
		crdebug.FunctionCounters.Failure.Add(1)
		return 0, err
	}

	r.funcs[fn] = id
	return id, nil
}

func (r *Recorder) peek(gid int64) *int64 {
	r.smtx.Lock()
	defer r.smtx.Unlock()

	s := r.stacks[gid]
	if len(s) == 0 {
		return nil
	}
	top := s[len(s)-1]
	return &top
}

func (r *Recorder) push(gid, id int64) {
	r.smtx.Lock()
	defer r.smtx.Unlock()

	r.stacks[gid] = append(r.stacks[gid], id)
}

func (r *Recorder) pop(gid, id int64) {
	r.smtx.Lock()
	defer r.smtx.Unlock()

	// Ends run LIFO via defer, so the id is normally on top.
	s := r.stacks[gid]
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == id {
			s = append(s[:i], s[i+1:]...)
			break
		}
	}

	if len(s) == 0 {
		delete(r.stacks, gid)
	} else {
		r.stacks[gid] = s
	}
}

//
//
//

func describePanic(recovered any) (typ, msg string) {
	if err, ok := recovered.(error); ok {
		return typeName(err), err.Error()
	}
	return typeName(recovered), fmt.Sprint(recovered)
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
