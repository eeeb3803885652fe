package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bitfantasy/nimo-qms/internal/qms/entity"
	"github.com/bitfantasy/nimo-qms/internal/shared/feishu"
)

// 三级告警自动召集紧急会议
const emergencyMeetingLevel = 3

// FeishuNotifier 安灯告警推送到飞书群，并创建跟进任务
type FeishuNotifier struct {
	client       *feishu.FeishuClient
	chatID       string
	dashboardURL string
}

func NewFeishuNotifier(client *feishu.FeishuClient, chatID, dashboardURL string) *FeishuNotifier {
	return &FeishuNotifier{client: client, chatID: chatID, dashboardURL: dashboardURL}
}

func (n *FeishuNotifier) card(ev *entity.EscalationEvent) feishu.AndonCard {
	c := feishu.AndonCard{
		AlertID:          ev.ID,
		AlertCode:        ev.AlertCode,
		LineID:           ev.LineID,
		Level:            ev.Level,
		TriggeredBy:      ev.TriggeredBy,
		Deadline:         ev.ResponseDeadline,
		RequiredActions:  ev.RequiredActions,
		Status:           ev.Status,
		CorrectiveAction: ev.CorrectiveAction,
	}
	if n.dashboardURL != "" {
		c.DetailURL = strings.TrimRight(n.dashboardURL, "/") + "/" + ev.ID
	}
	switch ev.Status {
	case "acknowledged":
		c.Operator = ev.AcknowledgedBy
	case "resolved":
		c.Operator = ev.ResolvedBy
	}
	return c
}

// NotifyRaised 发送告警卡片、创建跟进任务，三级告警另建紧急会议
func (n *FeishuNotifier) NotifyRaised(ctx context.Context, ev *entity.EscalationEvent) (string, error) {
	if _, err := n.client.SendCard(ctx, n.chatID, feishu.NewAndonAlertCard(n.card(ev))); err != nil {
		return "", err
	}

	var errs []error
	taskID, err := n.client.CreateTask(ctx, feishu.CreateTaskReq{
		Summary:     fmt.Sprintf("[L%d] 安灯 %s · 产线 %s", ev.Level, ev.AlertCode, ev.LineID),
		Description: strings.Join(ev.RequiredActions, "\n"),
		Due:         &feishu.TaskDue{Time: ev.ResponseDeadline.UnixMilli()},
	})
	if err != nil {
		errs = append(errs, err)
	}

	if ev.Level >= emergencyMeetingLevel {
		_, err := n.client.CreateMeeting(ctx, feishu.CreateMeetingReq{
			Summary:          fmt.Sprintf("紧急质量会议: %s 产线 %s", ev.AlertCode, ev.LineID),
			Description:      strings.Join(ev.RequiredActions, "\n"),
			StartTime:        ev.CreatedAt,
			EndTime:          ev.ResponseDeadline,
			NeedNotification: true,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return taskID, errors.Join(errs...)
}

// NotifyUpdated 发送状态卡片，关闭时完成跟进任务
func (n *FeishuNotifier) NotifyUpdated(ctx context.Context, ev *entity.EscalationEvent) error {
	if _, err := n.client.SendCard(ctx, n.chatID, feishu.NewAndonStatusCard(n.card(ev))); err != nil {
		return err
	}
	if ev.Status == "resolved" && ev.FeishuTaskID != "" {
		return n.client.CompleteTask(ctx, ev.FeishuTaskID)
	}
	return nil
}
