package llm

import "context"

// Request 描述一次文本生成调用。
type Request struct {
	// Prompt 是完整的提示词文本。
	Prompt string
	// Model 可覆盖客户端默认模型，留空使用默认值。
	Model string
}

// Response 是生成调用的结构化结果。
type Response struct {
	Text string
}

// Client 是语言模型能力的统一入口。核心引擎把它当作黑盒：
// 返回结构化结果或错误，不泄露任何原始输出清洗逻辑。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
