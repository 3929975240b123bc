package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/Himanshu-is-code/AMD-HACK/internal/intent"
	"github.com/Himanshu-is-code/AMD-HACK/internal/knowledge"
	"github.com/Himanshu-is-code/AMD-HACK/internal/llm"
)

// GeneralCard 是兜底卡片：任何没有专属能力的请求都由它收尾。
// 有模型时生成一段简短计划；完全离线时查本地知识库，
// 保证不需要联网的请求总能得到可用的回复。
type GeneralCard struct {
	generator llm.Client
	knowledge knowledge.Provider
}

// NewGeneralCard 构造兜底卡片。两个依赖都允许为空。
func NewGeneralCard(generator llm.Client, provider knowledge.Provider) *GeneralCard {
	return &GeneralCard{generator: generator, knowledge: provider}
}

// Name 实现 Card 接口。
func (c *GeneralCard) Name() string { return "General Agent" }

// Intent 实现 Card 接口。
func (c *GeneralCard) Intent() intent.Intent { return intent.IntentGeneral }

// CanHandle 实现 Card 接口。兜底卡片接受一切意图。
func (c *GeneralCard) CanHandle(intent.Intent) bool { return true }

// Execute 实现 Card 接口。
func (c *GeneralCard) Execute(ctx context.Context, req Request) (*Result, error) {
	if c.generator != nil {
		prompt := fmt.Sprintf("Break this request into steps. Keep it very brief and concise (under 100 words):\n%s", req.Text)
		if resp, err := c.generator.Generate(ctx, llm.Request{Prompt: prompt}); err == nil {
			return &Result{Plan: resp.Text}, nil
		}
	}

	if c.knowledge != nil {
		snippets := c.knowledge.Query(req.Text, string(req.Intent))
		if len(snippets) > 0 {
			var b strings.Builder
			var sources []Source
			for _, s := range snippets {
				if s.Title != "" {
					fmt.Fprintf(&b, "**%s**\n", s.Title)
				}
				b.WriteString(s.Content)
				b.WriteString("\n")
				if s.URL != "" {
					sources = append(sources, Source{Title: s.Title, URL: s.URL})
				}
			}
			return &Result{Plan: strings.TrimRight(b.String(), "\n"), Sources: sources}, nil
		}
	}

	return &Result{
		Plan: "This request doesn't trigger any specialized tools. I've noted it down:\n" + req.Text,
	}, nil
}

var _ Card = (*GeneralCard)(nil)
