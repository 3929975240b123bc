package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider 定义离线知识检索的通用接口。
// General 卡片在完全离线的请求上用它补充可用的提示文本。
type Provider interface {
	Query(request, intent string) []Snippet
}

// Snippet 描述一段可直接回给用户的知识。
type Snippet struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	URL      string   `json:"url,omitempty"`
	Keywords []string `json:"keywords"`
	Intents  []string `json:"intents"`
}

// indexedSnippet 在加载时预先归一化匹配字段，避免每次查询重复处理。
type indexedSnippet struct {
	Snippet
	keywords []string
	intents  map[string]struct{}
}

// StaticProvider 通过加载 JSON 文件提供静态知识检索能力。
type StaticProvider struct {
	index      []indexedSnippet
	maxResults int
}

// NewStaticProvider 创建静态知识库实例。
func NewStaticProvider(items []Snippet, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = 3
	}
	index := make([]indexedSnippet, 0, len(items))
	for _, item := range items {
		indexed := indexedSnippet{Snippet: item, intents: make(map[string]struct{})}
		for _, keyword := range item.Keywords {
			if normalized := strings.ToLower(strings.TrimSpace(keyword)); normalized != "" {
				indexed.keywords = append(indexed.keywords, normalized)
			}
		}
		for _, tag := range item.Intents {
			if normalized := strings.ToLower(strings.TrimSpace(tag)); normalized != "" {
				indexed.intents[normalized] = struct{}{}
			}
		}
		index = append(index, indexed)
	}
	return &StaticProvider{index: index, maxResults: maxResults}
}

// LoadStaticProvider 从 JSON 文件加载知识条目。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("知识库文件路径不能为空")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析知识库路径失败: %w", err)
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取知识库文件失败: %w", err)
	}
	var entries []Snippet
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, fmt.Errorf("解析知识库文件失败: %w", err)
	}
	return NewStaticProvider(entries, maxResults), nil
}

// Query 按条目顺序返回命中的知识，最多 maxResults 条。
// 命中条件：意图标签精确匹配，或任一关键词出现在请求文本中。
func (p *StaticProvider) Query(request, intent string) []Snippet {
	if p == nil {
		return nil
	}
	request = strings.ToLower(strings.TrimSpace(request))
	intent = strings.ToLower(strings.TrimSpace(intent))

	var results []Snippet
	for _, item := range p.index {
		if !item.matches(request, intent) {
			continue
		}
		results = append(results, item.Snippet)
		if len(results) == p.maxResults {
			break
		}
	}
	return results
}

func (s *indexedSnippet) matches(request, intent string) bool {
	if intent != "" {
		if _, ok := s.intents[intent]; ok {
			return true
		}
	}
	for _, keyword := range s.keywords {
		if strings.Contains(request, keyword) {
			return true
		}
	}
	return false
}

var _ Provider = (*StaticProvider)(nil)
