package web3

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadChainDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chain.yaml")
	raw := `chains:
  local:
    type: evm
    rpc_url: http://127.0.0.1:8545
    description: dev chain
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write chain config: %v", err)
	}

	defs, err := LoadChainDefinitions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def, ok := defs.Chains["local"]
	if !ok {
		t.Fatal("local chain missing")
	}
	if def.Type != "evm" || def.RPCURL != "http://127.0.0.1:8545" || def.Description != "dev chain" {
		t.Fatalf("unexpected definition: %+v", def)
	}
}

func TestLoadChainDefinitionsEmptyPath(t *testing.T) {
	defs, err := LoadChainDefinitions("")
	if err != nil {
		t.Fatalf("empty path should not error: %v", err)
	}
	if len(defs.Chains) != 0 {
		t.Fatalf("expected empty set, got %+v", defs.Chains)
	}
}

func TestLoadChainDefinitionsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chain.yaml")
	if err := os.WriteFile(path, []byte("chains: ["), 0o644); err != nil {
		t.Fatalf("write chain config: %v", err)
	}
	if _, err := LoadChainDefinitions(path); err == nil {
		t.Fatal("expected parse error")
	}
}
