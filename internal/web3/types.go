package web3

import "context"

// ChainSnapshot 汇总链上元数据，用于把指纹链头锚定到具体区块。
type ChainSnapshot struct {
	ChainID     string `json:"chain_id"`
	BlockNumber string `json:"block_number"`
	Notes       string `json:"notes,omitempty"`
}

// Client 定义链客户端的统一接口，上层据此锚定编排运行的溯源信息。
type Client interface {
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	Close()
}
