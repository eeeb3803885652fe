package feishu

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

type calendarTime struct {
	Timestamp string `json:"timestamp"`
}

type calendarAttendee struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

type calendarEventBody struct {
	Summary          string             `json:"summary"`
	Description      string             `json:"description,omitempty"`
	StartTime        calendarTime       `json:"start_time"`
	EndTime          calendarTime       `json:"end_time"`
	Attendees        []calendarAttendee `json:"attendees,omitempty"`
	NeedNotification bool               `json:"need_notification"`
}

func unixTime(t time.Time) calendarTime {
	return calendarTime{Timestamp: strconv.FormatInt(t.Unix(), 10)}
}

// CreateMeeting 在应用主日历创建会议，返回日历事件ID
func (c *FeishuClient) CreateMeeting(ctx context.Context, req CreateMeetingReq) (string, error) {
	if !req.EndTime.After(req.StartTime) {
		req.EndTime = req.StartTime.Add(30 * time.Minute)
	}
	body := calendarEventBody{
		Summary:          req.Summary,
		Description:      req.Description,
		StartTime:        unixTime(req.StartTime),
		EndTime:          unixTime(req.EndTime),
		NeedNotification: req.NeedNotification,
	}
	for _, id := range req.AttendeeIDs {
		body.Attendees = append(body.Attendees, calendarAttendee{Type: "user", UserID: id})
	}

	var resp CreateMeetingResponse
	if err := c.doRequest(ctx, "POST", "/calendar/v4/calendars/primary/events", body, &resp); err != nil {
		return "", fmt.Errorf("创建紧急会议失败: %w", err)
	}
	return resp.Data.Event.EventID, nil
}
