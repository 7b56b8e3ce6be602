// Command dispatchworker is a reference PROCESS worker: it reads
// newline-delimited procpool.Request values from stdin, dispatches them
// to a process-local procpool.HandlerRegistry, and writes
// procpool.Response values to stdout.
//
// It registers only an "echo" handler, useful for exercising the
// procpool wire protocol end to end. Production users of dispatch build
// their own worker binary the same way: import
// github.com/zoobzio/dispatch/procpool's Request/Response types and
// HandlerRegistry, register the handlers named by ActorConfig's
// ProcessID values, and point Executor's process pool options at the
// resulting binary.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/zoobzio/dispatch/procpool"
)

func main() {
	registry := procpool.NewHandlerRegistry()
	registry.Register("echo", func(payload []byte) ([]byte, error) {
		return payload, nil
	})

	reader := bufio.NewReader(os.Stdin)
	writer := bufio.NewWriter(os.Stdout)
	defer writer.Flush()

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			return
		}

		var req procpool.Request
		resp := handleLine(registry, line, &req)

		out, err := json.Marshal(resp)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dispatchworker: encoding response: %v\n", err)
			continue
		}
		out = append(out, '\n')
		if _, err := writer.Write(out); err != nil {
			fmt.Fprintf(os.Stderr, "dispatchworker: writing response: %v\n", err)
			return
		}
		if err := writer.Flush(); err != nil {
			fmt.Fprintf(os.Stderr, "dispatchworker: flushing response: %v\n", err)
			return
		}
	}
}

func handleLine(registry *procpool.HandlerRegistry, line []byte, req *procpool.Request) procpool.Response {
	if err := json.Unmarshal(line, req); err != nil {
		return procpool.Response{Err: fmt.Sprintf("decoding request: %v", err)}
	}

	handler, ok := registry.Lookup(req.HandlerID)
	if !ok {
		return procpool.Response{Err: fmt.Sprintf("no handler registered for id %q", req.HandlerID)}
	}

	result, err := handler(req.Payload)
	if err != nil {
		return procpool.Response{Err: err.Error()}
	}
	return procpool.Response{Result: json.RawMessage(result)}
}
