package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	xerrors "github.com/Himanshu-is-code/AMD-HACK/internal/errors"
	"github.com/Himanshu-is-code/AMD-HACK/internal/intent"
	"github.com/Himanshu-is-code/AMD-HACK/internal/workspace"
)

// meetCodePattern 匹配 xxx-yyyy-zzz 形式的会议码。
var meetCodePattern = regexp.MustCompile(`\b[a-z]{3}-[a-z]{4}-[a-z]{3}\b`)

// MeetCard 处理视频会议请求：创建会议或查询参会人。
// 路由用关键词预判，避免把会议码交给模型二次理解。
type MeetCard struct {
	meet workspace.MeetClient
}

// NewMeetCard 构造会议卡片。
func NewMeetCard(meet workspace.MeetClient) *MeetCard {
	return &MeetCard{meet: meet}
}

// Name 实现 Card 接口。
func (c *MeetCard) Name() string { return "Meet Agent" }

// Intent 实现 Card 接口。
func (c *MeetCard) Intent() intent.Intent { return intent.IntentMeet }

// CanHandle 实现 Card 接口。
func (c *MeetCard) CanHandle(i intent.Intent) bool { return i == intent.IntentMeet }

// Execute 实现 Card 接口。
func (c *MeetCard) Execute(ctx context.Context, req Request) (*Result, error) {
	if c.meet == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置会议客户端")
	}

	lowered := strings.ToLower(req.Text)
	if strings.Contains(lowered, "participant") {
		code := meetCodePattern.FindString(lowered)
		if code == "" {
			return &Result{Plan: "Could not find a meeting code in the request. Include it like abc-defg-hij."}, nil
		}
		participants, err := c.meet.ListParticipants(ctx, code)
		if err != nil {
			return nil, wrapServiceError(err, "查询参会人失败")
		}
		if len(participants) == 0 {
			return &Result{Plan: fmt.Sprintf("No participants recorded for meeting %s.", code)}, nil
		}
		return &Result{
			Plan: fmt.Sprintf("Participants of %s:\n- %s", code, strings.Join(participants, "\n- ")),
		}, nil
	}

	meeting, err := c.meet.CreateMeeting(ctx)
	if err != nil {
		return nil, wrapServiceError(err, "创建会议失败")
	}
	return &Result{
		Plan:    fmt.Sprintf("Meeting created: %s\n[Join](%s)", meeting.Code, meeting.Link),
		Sources: []Source{{Title: "Meeting " + meeting.Code, URL: meeting.Link}},
	}, nil
}

var _ Card = (*MeetCard)(nil)
