package agent

import (
	"context"
	"fmt"
	"strings"

	xerrors "github.com/Himanshu-is-code/AMD-HACK/internal/errors"
	"github.com/Himanshu-is-code/AMD-HACK/internal/intent"
	"github.com/Himanshu-is-code/AMD-HACK/internal/llm"
	"github.com/Himanshu-is-code/AMD-HACK/internal/workspace"
)

const (
	emailSearchLimit = 3
	emailUnreadLimit = 5
	emailBodyLimit   = 2000
)

// EmailCard 处理邮件类请求。请求先被区分为"找某一封"还是
// "总结收件箱"两种形态，再分别走搜索或未读列表。
type EmailCard struct {
	mail      workspace.MailClient
	generator llm.Client
}

// NewEmailCard 构造邮件卡片。
func NewEmailCard(mail workspace.MailClient, generator llm.Client) *EmailCard {
	return &EmailCard{mail: mail, generator: generator}
}

// Name 实现 Card 接口。
func (c *EmailCard) Name() string { return "Email Agent" }

// Intent 实现 Card 接口。
func (c *EmailCard) Intent() intent.Intent { return intent.IntentEmail }

// CanHandle 实现 Card 接口。
func (c *EmailCard) CanHandle(i intent.Intent) bool { return i == intent.IntentEmail }

// Execute 实现 Card 接口。
func (c *EmailCard) Execute(ctx context.Context, req Request) (*Result, error) {
	if c.mail == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置邮箱客户端")
	}

	if c.isSpecific(ctx, req.Text) {
		result, err := c.searchOne(ctx, req.Text)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
		// 搜索没有命中时退回收件箱总结。
	}
	return c.summarizeInbox(ctx)
}

// isSpecific 判断请求是要找特定邮件还是要一个总体摘要。
func (c *EmailCard) isSpecific(ctx context.Context, text string) bool {
	if c.generator != nil {
		prompt := fmt.Sprintf(`Classify this request: %q
Is the user asking for a SPECIFIC email (topic, person, keyword) or a GENERAL inbox summary?
Answer with ONLY the word SPECIFIC or GENERAL.`, text)
		if resp, err := c.generator.Generate(ctx, llm.Request{Prompt: prompt}); err == nil {
			return strings.Contains(strings.ToUpper(resp.Text), "SPECIFIC")
		}
	}
	lowered := strings.ToLower(text)
	for _, marker := range []string{"from ", "about ", "regarding ", "find "} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// searchOne 检索首封命中的邮件并生成摘要。没有命中时返回 (nil, nil)。
func (c *EmailCard) searchOne(ctx context.Context, text string) (*Result, error) {
	query := c.buildQuery(ctx, text)

	messages, err := c.mail.SearchMessages(ctx, query, emailSearchLimit)
	if err != nil {
		return nil, wrapServiceError(err, "搜索邮件失败")
	}
	if len(messages) == 0 {
		return nil, nil
	}

	content, err := c.mail.GetMessage(ctx, messages[0].ID)
	if err != nil {
		return nil, wrapServiceError(err, "读取邮件失败")
	}

	body := content.Body
	if len(body) > emailBodyLimit {
		body = body[:emailBodyLimit]
	}
	summary := body
	if c.generator != nil {
		prompt := fmt.Sprintf("Summarize this email for the request %q\n\nSubject: %s\nBody: %s",
			text, content.Subject, body)
		if resp, err := c.generator.Generate(ctx, llm.Request{Prompt: prompt}); err == nil {
			summary = resp.Text
		}
	}

	link := "https://mail.google.com/mail/u/0/#inbox/" + content.ID
	return &Result{
		Plan: fmt.Sprintf("Email found\n**Subject:** %s\n\n%s\n\n[Open in mailbox](%s)",
			content.Subject, summary, link),
		Sources: []Source{{Title: content.Subject, URL: link}},
	}, nil
}

// buildQuery 让语言模型把自然语言压成简单的搜索串，失败时直接用原文。
func (c *EmailCard) buildQuery(ctx context.Context, text string) string {
	if c.generator == nil {
		return text
	}
	prompt := fmt.Sprintf(`Generate a plain mailbox search query for: %q
Respond with ONLY the query string, simple keywords, operators like from: only when certain.`, text)
	resp, err := c.generator.Generate(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		return text
	}
	lines := strings.Split(strings.TrimSpace(resp.Text), "\n")
	query := strings.ReplaceAll(strings.TrimSpace(lines[len(lines)-1]), `"`, "")
	if query == "" {
		return text
	}
	return query
}

// summarizeInbox 汇总最近的未读邮件。
func (c *EmailCard) summarizeInbox(ctx context.Context) (*Result, error) {
	messages, err := c.mail.RecentUnread(ctx, emailUnreadLimit)
	if err != nil {
		return nil, wrapServiceError(err, "读取未读邮件失败")
	}
	if len(messages) == 0 {
		return &Result{Plan: "No new emails."}, nil
	}

	var lines []string
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("- From: %s Subject: %s", m.Sender, m.Subject))
	}
	summary := strings.Join(lines, "\n")
	if c.generator != nil {
		prompt := "Summarize these unread emails briefly:\n" + summary
		if resp, err := c.generator.Generate(ctx, llm.Request{Prompt: prompt}); err == nil {
			summary = resp.Text
		}
	}
	return &Result{Plan: "Inbox summary\n" + summary}, nil
}

var _ Card = (*EmailCard)(nil)
