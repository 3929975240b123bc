package agent

import (
	"log/slog"

	xerrors "github.com/Himanshu-is-code/AMD-HACK/internal/errors"
	"github.com/Himanshu-is-code/AMD-HACK/internal/intent"
	"github.com/Himanshu-is-code/AMD-HACK/pkg/logger"
)

// Registry 按意图持有已注册的 Agent Card，并提供 general 兜底。
type Registry struct {
	cards    []Card
	fallback Card
}

// NewRegistry 构造注册表。fallback 为空时没有兜底卡片。
func NewRegistry(fallback Card, cards ...Card) *Registry {
	r := &Registry{fallback: fallback}
	for _, card := range cards {
		r.Register(card)
	}
	return r
}

// Register 追加一张卡片。后注册的同意图卡片不会覆盖先注册的。
func (r *Registry) Register(card Card) {
	if card == nil {
		return
	}
	r.cards = append(r.cards, card)
	logger.L().Debug("注册 Agent Card",
		slog.String("card", card.Name()),
		slog.String("intent", string(card.Intent())),
	)
}

// CardFor 返回首个声明可处理该意图的卡片；没有命中时返回兜底卡片。
func (r *Registry) CardFor(i intent.Intent) (Card, error) {
	for _, card := range r.cards {
		if card.CanHandle(i) {
			return card, nil
		}
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, xerrors.New(xerrors.CodeNotFound, "没有可处理该意图的 Agent Card",
		xerrors.WithMetadata("intent", string(i)))
}

// Cards 返回所有已注册卡片（不含兜底），用于自检与展示。
func (r *Registry) Cards() []Card {
	out := make([]Card, len(r.cards))
	copy(out, r.cards)
	return out
}
