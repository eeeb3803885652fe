package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SendCard 向群聊发送消息卡片
func (c *FeishuClient) SendCard(ctx context.Context, chatID string, card InteractiveCard) (string, error) {
	return c.sendCard(ctx, "chat_id", chatID, card)
}

// SendUserCard 向个人发送消息卡片
func (c *FeishuClient) SendUserCard(ctx context.Context, openID string, card InteractiveCard) (string, error) {
	return c.sendCard(ctx, "open_id", openID, card)
}

func (c *FeishuClient) sendCard(ctx context.Context, idType, id string, card InteractiveCard) (string, error) {
	cardBytes, err := json.Marshal(card)
	if err != nil {
		return "", fmt.Errorf("序列化卡片内容失败: %w", err)
	}

	reqBody := map[string]interface{}{
		"receive_id": id,
		"msg_type":   "interactive",
		"content":    string(cardBytes),
	}

	var resp SendMessageResponse
	path := "/im/v1/messages?receive_id_type=" + idType
	if err := c.doRequest(ctx, "POST", path, reqBody, &resp); err != nil {
		return "", fmt.Errorf("发送消息卡片失败: %w", err)
	}
	return resp.Data.MessageID, nil
}

// 卡片按钮动作
const (
	CardActionAcknowledge = "acknowledge"
)

// AndonCard 安灯卡片内容
type AndonCard struct {
	AlertID          string
	AlertCode        string
	LineID           string
	Level            int
	TriggeredBy      string
	Deadline         time.Time
	RequiredActions  []string
	Status           string
	Operator         string
	CorrectiveAction string
	DetailURL        string
}

var levelTemplates = map[int]string{1: "yellow", 2: "orange", 3: "red"}

func levelTemplate(level int) string {
	if t, ok := levelTemplates[level]; ok {
		return t
	}
	return "red"
}

func shortField(label, value string) CardField {
	return CardField{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**%s**\n%s", label, value)}}
}

// NewAndonAlertCard 安灯告警卡片，带确认按钮
func NewAndonAlertCard(a AndonCard) InteractiveCard {
	actions := make([]string, 0, len(a.RequiredActions))
	for i, act := range a.RequiredActions {
		actions = append(actions, fmt.Sprintf("%d. %s", i+1, act))
	}

	buttons := []CardAction{{
		Tag:   "button",
		Text:  CardText{Tag: "plain_text", Content: "确认响应"},
		Type:  "danger",
		Value: map[string]string{"action": CardActionAcknowledge, "alert_id": a.AlertID},
	}}
	if a.DetailURL != "" {
		buttons = append(buttons, CardAction{
			Tag:  "button",
			Text: CardText{Tag: "plain_text", Content: "查看详情"},
			Type: "default",
			URL:  a.DetailURL,
		})
	}

	return InteractiveCard{
		Config: &CardConfig{WideScreenMode: true},
		Header: &CardHeader{
			Title:    CardText{Tag: "plain_text", Content: fmt.Sprintf("🚨 安灯 L%d 告警 · %s", a.Level, a.LineID)},
			Template: levelTemplate(a.Level),
		},
		Elements: []CardElement{
			{
				Tag: "div",
				Fields: []CardField{
					shortField("告警编号", a.AlertCode),
					shortField("产线", a.LineID),
					shortField("触发条件", a.TriggeredBy),
					shortField("响应截止", a.Deadline.Format("2006-01-02 15:04")),
				},
			},
			{Tag: "hr"},
			{Tag: "markdown", Content: "**必要措施**\n" + strings.Join(actions, "\n")},
			{Tag: "action", Actions: buttons},
		},
	}
}

// NewAndonStatusCard 安灯状态变更卡片
func NewAndonStatusCard(a AndonCard) InteractiveCard {
	title := "✅ 安灯已确认"
	template := "blue"
	if a.Status == "resolved" {
		title = "✅ 安灯已关闭"
		template = "green"
	}

	elements := []CardElement{{
		Tag: "div",
		Fields: []CardField{
			shortField("告警编号", a.AlertCode),
			shortField("产线", a.LineID),
			shortField("级别", fmt.Sprintf("L%d", a.Level)),
			shortField("处理人", a.Operator),
		},
	}}
	if a.CorrectiveAction != "" {
		elements = append(elements,
			CardElement{Tag: "hr"},
			CardElement{Tag: "div", Text: &CardText{Tag: "lark_md", Content: "**纠正措施**\n" + a.CorrectiveAction}},
		)
	}

	return InteractiveCard{
		Config:   &CardConfig{WideScreenMode: true},
		Header:   &CardHeader{Title: CardText{Tag: "plain_text", Content: title}, Template: template},
		Elements: elements,
	}
}
