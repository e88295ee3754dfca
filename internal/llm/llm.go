package llm

import "context"

// Request 描述发送给大模型的一次生成请求。
// 采样参数由客户端固定（温度 0.6、最多 512 个输出 token），
// 不随请求变化。
type Request struct {
	Model  string
	Prompt string
}

// Response 是大模型返回的原始文本。
type Response struct {
	Text string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
