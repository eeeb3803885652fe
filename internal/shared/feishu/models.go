package feishu

import (
	"encoding/json"
	"time"
)

// BaseResponse 飞书API通用响应结构
type BaseResponse struct {
	Code int    `json:"code"` // 0表示成功
	Msg  string `json:"msg"`
}

// =============================================================================
// 任务
// =============================================================================

// TaskMember 任务成员
type TaskMember struct {
	ID   string `json:"id"`   // OpenID
	Role string `json:"role"` // assignee/follower
}

// TaskDue 任务截止时间
type TaskDue struct {
	Time     int64 `json:"time"` // 毫秒时间戳
	IsAllDay bool  `json:"is_all_day"`
}

// CreateTaskReq 创建任务请求
type CreateTaskReq struct {
	Summary     string       `json:"summary"`
	Description string       `json:"description,omitempty"`
	Members     []TaskMember `json:"members,omitempty"`
	Due         *TaskDue     `json:"due,omitempty"`
}

// CreateTaskResponse 创建任务响应
type CreateTaskResponse struct {
	BaseResponse
	Data struct {
		Task struct {
			Guid string `json:"guid"`
		} `json:"task"`
	} `json:"data"`
}

// =============================================================================
// 会议（日历事件）
// =============================================================================

// CreateMeetingReq 创建会议请求
type CreateMeetingReq struct {
	Summary          string
	Description      string
	StartTime        time.Time
	EndTime          time.Time
	AttendeeIDs      []string
	NeedNotification bool
}

// CreateMeetingResponse 创建会议响应
type CreateMeetingResponse struct {
	BaseResponse
	Data struct {
		Event struct {
			EventID string `json:"event_id"`
		} `json:"event"`
	} `json:"data"`
}

// =============================================================================
// 消息卡片
// =============================================================================

// InteractiveCard 飞书交互式消息卡片
type InteractiveCard struct {
	Config   *CardConfig   `json:"config,omitempty"`
	Header   *CardHeader   `json:"header,omitempty"`
	Elements []CardElement `json:"elements,omitempty"`
}

// CardConfig 卡片配置
type CardConfig struct {
	WideScreenMode bool `json:"wide_screen_mode"`
}

// CardHeader 卡片标题，Template 为颜色：blue/green/red/orange等
type CardHeader struct {
	Title    CardText `json:"title"`
	Template string   `json:"template,omitempty"`
}

// CardText 卡片文本
type CardText struct {
	Tag     string `json:"tag"` // plain_text / lark_md
	Content string `json:"content"`
}

// CardElement 卡片元素
type CardElement struct {
	Tag      string        `json:"tag"` // div/hr/action/note/markdown
	Text     *CardText     `json:"text,omitempty"`
	Fields   []CardField   `json:"fields,omitempty"`
	Actions  []CardAction  `json:"actions,omitempty"`
	Elements []CardElement `json:"elements,omitempty"`
	Content  string        `json:"content,omitempty"`
}

// CardField 卡片字段
type CardField struct {
	IsShort bool     `json:"is_short"`
	Text    CardText `json:"text"`
}

// CardAction 卡片按钮
type CardAction struct {
	Tag   string            `json:"tag"`
	Text  CardText          `json:"text"`
	Type  string            `json:"type,omitempty"` // primary/danger/default
	URL   string            `json:"url,omitempty"`
	Value map[string]string `json:"value,omitempty"` // 回调数据
}

// SendMessageResponse 发送消息响应
type SendMessageResponse struct {
	BaseResponse
	Data struct {
		MessageID string `json:"message_id"`
	} `json:"data"`
}

// =============================================================================
// 回调事件
// =============================================================================

// CallbackEnvelope 卡片回调信封，兼容 URL 验证
type CallbackEnvelope struct {
	Type      string          `json:"type,omitempty"`
	Challenge string          `json:"challenge,omitempty"`
	Token     string          `json:"token,omitempty"`
	OpenID    string          `json:"open_id,omitempty"`
	Action    *CallbackAction `json:"action,omitempty"`
	Header    *CallbackHeader `json:"header,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
}

// CallbackHeader v2事件头
type CallbackHeader struct {
	EventType string `json:"event_type"`
	Token     string `json:"token"`
}

// CallbackAction 按钮回调内容
type CallbackAction struct {
	Tag   string            `json:"tag"`
	Value map[string]string `json:"value"`
}

// CardActionEvent 解析后的卡片按钮点击
type CardActionEvent struct {
	OperatorOpenID string
	Action         string
	AlertID        string
}
