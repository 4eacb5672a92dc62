package rpcclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handle func(method string, params []json.RawMessage) (interface{}, *rpcError)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if ok && (user != "alice" || pass != "secret") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
			ID     uint64            `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		result, rerr := handle(req.Method, req.Params)
		if rerr != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": result,
			"error":  rerr,
			"id":     req.ID,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCall(t *testing.T) {
	srv := newTestServer(t, func(method string, params []json.RawMessage) (interface{}, *rpcError) {
		switch method {
		case "getblockcount":
			return 42, nil
		case "getblockhash":
			var h int
			json.Unmarshal(params[0], &h)
			if h > 42 {
				return nil, &rpcError{Code: CodeInvalidParameter, Message: "Block height out of range"}
			}
			return "00ff", nil
		}
		return nil, &rpcError{Code: -32601, Message: "Method not found"}
	})
	c := New(srv.URL)
	ctx := context.Background()

	var count int64
	if err := c.Call(ctx, "getblockcount", nil, &count); err != nil {
		t.Fatalf("Call(getblockcount) error: %v", err)
	}
	if count != 42 {
		t.Errorf("getblockcount = %d, want 42", count)
	}

	var hash string
	if err := c.Call(ctx, "getblockhash", []interface{}{7}, &hash); err != nil {
		t.Fatalf("Call(getblockhash) error: %v", err)
	}
	if hash != "00ff" {
		t.Errorf("getblockhash = %q", hash)
	}

	err := c.Call(ctx, "getblockhash", []interface{}{100}, &hash)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != CodeInvalidParameter {
		t.Errorf("Call() error = %v, want RPCError %d", err, CodeInvalidParameter)
	}

	if err := c.Call(ctx, "nope", nil, nil); !errors.As(err, &rpcErr) {
		t.Errorf("Call(nope) error = %v, want RPCError", err)
	}
}

func TestCall_Auth(t *testing.T) {
	srv := newTestServer(t, func(string, []json.RawMessage) (interface{}, *rpcError) {
		return true, nil
	})
	c := NewWithTimeout(srv.URL, time.Second)
	c.SetAuth("alice", "secret")
	if err := c.Call(context.Background(), "ping", nil, nil); err != nil {
		t.Fatalf("Call() error: %v", err)
	}

	c.SetAuth("alice", "wrong")
	if err := c.Call(context.Background(), "ping", nil, nil); err == nil {
		t.Error("Call() with bad credentials should fail")
	}
}

func TestCall_Cancelled(t *testing.T) {
	srv := newTestServer(t, func(string, []json.RawMessage) (interface{}, *rpcError) {
		return nil, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(srv.URL).Call(ctx, "ping", nil, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Call() error = %v, want context.Canceled", err)
	}
}

func TestCall_ConnectionRefused(t *testing.T) {
	c := NewWithTimeout("http://127.0.0.1:1", 500*time.Millisecond)
	if err := c.Call(context.Background(), "ping", nil, nil); err == nil {
		t.Error("expected error for unreachable endpoint")
	}
}
