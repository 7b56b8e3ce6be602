// Package procpool manages the PROCESS off-loop worker pool: a fixed
// set of long-lived subprocesses, each addressed by a registered
// handler id, communicating over newline-delimited JSON on stdin/stdout.
// The wire types it speaks (Request, Response) and the HandlerRegistry a
// worker binary registers against live in the importable
// github.com/zoobzio/dispatch/procpool package, since this package is
// internal/ and cannot be imported by a caller's own worker binary.
//
// Grounded on the "wrap os/exec, talk JSON-lines over stdio" shape used
// by ethereum-go-ethereum's external signer/subprocess tooling; no
// ecosystem process-pool library appears anywhere in the retrieval pack,
// so this package is the one place the module reaches for the standard
// library over a third-party dependency (see DESIGN.md).
package procpool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	wire "github.com/zoobzio/dispatch/procpool"
)

// Pool manages a fixed set of long-lived worker subprocesses, each
// running WorkerBinary, and round-robins Invoke calls across them. Each
// worker handles one Request at a time; Pool itself is what provides
// concurrency across workers.
type Pool struct {
	mu      sync.Mutex
	workers []*worker
	next    int
}

// Options configures a Pool.
type Options struct {
	// WorkerBinary is the path to an executable speaking the
	// github.com/zoobzio/dispatch/procpool wire protocol on
	// stdin/stdout, typically built from a package that imports that
	// package's Request/Response types and HandlerRegistry (see
	// cmd/dispatchworker for a reference implementation).
	WorkerBinary string
	// Args are passed to every worker subprocess invocation.
	Args []string
	// Size is the number of worker subprocesses to start. Must be >= 1.
	Size int
}

// NewPool starts Size worker subprocesses and returns a Pool ready to
// Invoke against them. If any subprocess fails to start, already-started
// workers are shut down (stdin closed, then waited on) and the error is
// returned.
func NewPool(opts Options) (*Pool, error) {
	if opts.Size < 1 {
		return nil, fmt.Errorf("procpool: Size must be >= 1, got %d", opts.Size)
	}
	p := &Pool{}
	for i := 0; i < opts.Size; i++ {
		w, err := startWorker(opts.WorkerBinary, opts.Args)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("procpool: starting worker %d: %w", i, err)
		}
		p.workers = append(p.workers, w)
	}
	return p, nil
}

// Invoke sends payload to handlerID on the next available worker (round
// robin) and waits for its response, or for ctx to be done. Each worker
// serializes its own requests, so Invoke may block behind another
// in-flight call to the same worker even though other workers in the
// pool are idle; callers needing more parallelism should size the pool
// accordingly.
func (p *Pool) Invoke(ctx context.Context, handlerID string, payload json.RawMessage) (json.RawMessage, error) {
	w := p.pick()
	return w.invoke(ctx, handlerID, payload)
}

func (p *Pool) pick() *worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.workers[p.next]
	p.next = (p.next + 1) % len(p.workers)
	return w
}

// Close terminates every worker subprocess. It is safe to call more than
// once.
func (p *Pool) Close() error {
	p.mu.Lock()
	workers := p.workers
	p.workers = nil
	p.mu.Unlock()

	var firstErr error
	for _, w := range workers {
		if err := w.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// worker wraps a single running subprocess and serializes access to its
// stdin/stdout pipe pair.
type worker struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader
}

func startWorker(binary string, args []string) (*worker, error) {
	cmd := exec.Command(binary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &worker{cmd: cmd, stdin: stdin, reader: bufio.NewReader(stdout)}, nil
}

// invoke serializes a single request/response round trip against the
// worker's stdin/stdout pipe. The pipe is a single ordered stream, so the
// worker's lock is held for the full round trip: on ctx cancellation the
// call returns early to the caller, but the lock is only released once
// the in-flight read actually completes (or the worker is killed),
// otherwise a subsequent Invoke could interleave its request or read the
// previous call's stale response off the same pipe.
func (w *worker) invoke(ctx context.Context, handlerID string, payload json.RawMessage) (json.RawMessage, error) {
	w.mu.Lock()

	type result struct {
		resp wire.Response
		err  error
	}
	done := make(chan result, 1)

	go func() {
		req := wire.Request{HandlerID: handlerID, Payload: payload}
		line, err := json.Marshal(req)
		if err != nil {
			done <- result{err: fmt.Errorf("procpool: encoding request: %w", err)}
			return
		}
		line = append(line, '\n')
		if _, err := w.stdin.Write(line); err != nil {
			done <- result{err: fmt.Errorf("procpool: writing request: %w", err)}
			return
		}
		respLine, err := w.reader.ReadBytes('\n')
		if err != nil {
			done <- result{err: fmt.Errorf("procpool: reading response: %w", err)}
			return
		}
		var resp wire.Response
		if err := json.Unmarshal(respLine, &resp); err != nil {
			done <- result{err: fmt.Errorf("procpool: decoding response: %w", err)}
			return
		}
		done <- result{resp: resp}
	}()

	select {
	case r := <-done:
		w.mu.Unlock()
		if r.err != nil {
			return nil, r.err
		}
		if r.resp.Err != "" {
			return nil, fmt.Errorf("procpool: handler %q: %s", handlerID, r.resp.Err)
		}
		return r.resp.Result, nil
	case <-ctx.Done():
		cancelErr := ctx.Err()
		go func() {
			<-done
			w.mu.Unlock()
		}()
		return nil, cancelErr
	}
}

func (w *worker) close() error {
	w.stdin.Close()
	return w.cmd.Wait()
}
