// Package workspace 定义核心引擎消费的外部协作套件能力契约。
// OAuth 获取与各 Provider 的具体封装不在引擎范围内；
// 引擎只假设这些调用是同步的、可能很慢、可能依赖网络。
package workspace

import (
	"context"
	"errors"
	"time"
)

// 外部服务的公共错误，供 Agent Card 归类失败原因。
var (
	// ErrUnavailable 表示网络不可达或服务暂时不可用。
	ErrUnavailable = errors.New("workspace service unavailable")
	// ErrUnauthorized 表示凭证缺失或已失效。
	ErrUnauthorized = errors.New("workspace access not authorized")
)

// Event 描述待创建的日历事件。
type Event struct {
	Summary         string
	StartTime       time.Time
	DurationMinutes int
}

// CreatedEvent 是创建日历事件的结果。
type CreatedEvent struct {
	ID   string
	Link string
}

// CalendarClient 封装日历服务。
type CalendarClient interface {
	CreateEvent(ctx context.Context, event Event) (*CreatedEvent, error)
}

// EmailSummary 是邮件列表项。
type EmailSummary struct {
	ID      string
	Sender  string
	Subject string
}

// EmailContent 是单封邮件的正文内容。
type EmailContent struct {
	ID      string
	Subject string
	Body    string
}

// MailClient 封装邮箱服务。
type MailClient interface {
	SearchMessages(ctx context.Context, query string, limit int) ([]EmailSummary, error)
	GetMessage(ctx context.Context, id string) (*EmailContent, error)
	RecentUnread(ctx context.Context, limit int) ([]EmailSummary, error)
}

// Meeting 描述一个视频会议。
type Meeting struct {
	Code string
	Link string
}

// MeetClient 封装视频会议服务。
type MeetClient interface {
	CreateMeeting(ctx context.Context) (*Meeting, error)
	ListParticipants(ctx context.Context, code string) ([]string, error)
}

// Course 是课程条目。
type Course struct {
	ID   string
	Name string
}

// Assignment 是课程作业条目。
type Assignment struct {
	CourseID string
	Title    string
	DueDate  string
}

// ClassroomClient 封装在线课堂服务。
type ClassroomClient interface {
	ListCourses(ctx context.Context) ([]Course, error)
	ListAssignments(ctx context.Context, courseID string) ([]Assignment, error)
}
