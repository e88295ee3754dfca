package ethereum

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// rpcStub 模拟一个只支持链元数据查询的 JSON-RPC 节点。
func rpcStub(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}

		var result string
		switch req.Method {
		case "eth_chainId":
			result = "0x539" // 1337
		case "eth_blockNumber":
			result = "0x10"
		default:
			t.Errorf("unexpected rpc method %s", req.Method)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode rpc response: %v", err)
		}
	}))
}

func TestFetchChainSnapshot(t *testing.T) {
	server := rpcStub(t)
	defer server.Close()

	client, err := NewClient(context.Background(), Config{Name: "local", RPCURL: server.URL, Notes: "dev"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	snapshot, err := client.FetchChainSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchChainSnapshot: %v", err)
	}
	if snapshot.ChainID != "1337" {
		t.Fatalf("unexpected chain id: %s", snapshot.ChainID)
	}
	if snapshot.BlockNumber != "16" {
		t.Fatalf("unexpected block number: %s", snapshot.BlockNumber)
	}
	if snapshot.Notes != "dev" {
		t.Fatalf("notes not carried: %s", snapshot.Notes)
	}
}

func TestNewClientRequiresRPCURL(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without rpc url")
	}
}
