package intent

// Intent 是分类器输出的封闭意图枚举。
type Intent string

const (
	IntentCalendar  Intent = "calendar"
	IntentEmail     Intent = "email"
	IntentMeet      Intent = "meet"
	IntentClassroom Intent = "classroom"
	IntentSearch    Intent = "search"
	IntentGeneral   Intent = "general"
)

// IsValid 检查给定意图是否为支持的枚举值。
func IsValid(i Intent) bool {
	switch i {
	case IntentCalendar, IntentEmail, IntentMeet, IntentClassroom, IntentSearch, IntentGeneral:
		return true
	default:
		return false
	}
}

// Result 是一次意图分类的结构化结果。
type Result struct {
	Intent        Intent  `json:"intent"`
	NeedsInternet bool    `json:"needs_internet"`
	Confidence    float64 `json:"confidence"`
}

// Classifier 将自然语言请求映射到封闭意图集合。
// 实现必须是确定性的：固定配置下相同输入总是得到相同结果，
// 且任何内部失败都退化为 general 而不是返回错误。
type Classifier interface {
	Classify(text string) Result
}
