package procpool

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"testing"
)

func TestProtocolRoundTrip(t *testing.T) {
	req := Request{HandlerID: "upper", Payload: json.RawMessage(`"hi"`)}
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal request: %v", err)
	}

	var decoded Request
	if err := json.Unmarshal(line, &decoded); err != nil {
		t.Fatalf("Unmarshal request: %v", err)
	}
	if decoded.HandlerID != "upper" {
		t.Fatalf("HandlerID = %q, want %q", decoded.HandlerID, "upper")
	}

	resp := Response{Result: json.RawMessage(`"HI"`)}
	respLine, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal response: %v", err)
	}
	respLine = append(respLine, '\n')

	reader := bufio.NewReader(bytes.NewReader(respLine))
	got, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		t.Fatalf("ReadBytes: %v", err)
	}
	var decodedResp Response
	if err := json.Unmarshal(bytes.TrimSpace(got), &decodedResp); err != nil {
		t.Fatalf("Unmarshal response: %v", err)
	}
	if string(decodedResp.Result) != `"HI"` {
		t.Fatalf("Result = %s, want \"HI\"", decodedResp.Result)
	}
}

func TestHandlerRegistry(t *testing.T) {
	r := NewHandlerRegistry()
	r.Register("upper", func(payload []byte) ([]byte, error) {
		return payload, nil
	})
	fn, ok := r.Lookup("upper")
	if !ok {
		t.Fatal("expected \"upper\" to be registered")
	}
	out, err := fn([]byte(`"hi"`))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if string(out) != `"hi"` {
		t.Fatalf("handler output = %q", out)
	}

	if _, ok := r.Lookup("missing"); ok {
		t.Fatal("expected \"missing\" to be unregistered")
	}
}
