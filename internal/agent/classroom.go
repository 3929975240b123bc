package agent

import (
	"context"
	"fmt"
	"strings"

	xerrors "github.com/Himanshu-is-code/AMD-HACK/internal/errors"
	"github.com/Himanshu-is-code/AMD-HACK/internal/intent"
	"github.com/Himanshu-is-code/AMD-HACK/internal/workspace"
)

// ClassroomCard 查询课程与作业。
type ClassroomCard struct {
	classroom workspace.ClassroomClient
}

// NewClassroomCard 构造课堂卡片。
func NewClassroomCard(classroom workspace.ClassroomClient) *ClassroomCard {
	return &ClassroomCard{classroom: classroom}
}

// Name 实现 Card 接口。
func (c *ClassroomCard) Name() string { return "Classroom Agent" }

// Intent 实现 Card 接口。
func (c *ClassroomCard) Intent() intent.Intent { return intent.IntentClassroom }

// CanHandle 实现 Card 接口。
func (c *ClassroomCard) CanHandle(i intent.Intent) bool { return i == intent.IntentClassroom }

// Execute 实现 Card 接口。
func (c *ClassroomCard) Execute(ctx context.Context, req Request) (*Result, error) {
	if c.classroom == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置课堂客户端")
	}

	courses, err := c.classroom.ListCourses(ctx)
	if err != nil {
		return nil, wrapServiceError(err, "查询课程失败")
	}
	if len(courses) == 0 {
		return &Result{Plan: "No courses found for this account."}, nil
	}

	wantsAssignments := false
	lowered := strings.ToLower(req.Text)
	for _, marker := range []string{"assignment", "homework", "due"} {
		if strings.Contains(lowered, marker) {
			wantsAssignments = true
			break
		}
	}

	var b strings.Builder
	b.WriteString("Courses:\n")
	for _, course := range courses {
		fmt.Fprintf(&b, "- %s\n", course.Name)
		if !wantsAssignments {
			continue
		}
		assignments, err := c.classroom.ListAssignments(ctx, course.ID)
		if err != nil {
			return nil, wrapServiceError(err, "查询作业失败")
		}
		for _, a := range assignments {
			fmt.Fprintf(&b, "  - %s (due %s)\n", a.Title, a.DueDate)
		}
	}
	return &Result{Plan: strings.TrimRight(b.String(), "\n")}, nil
}

var _ Card = (*ClassroomCard)(nil)
