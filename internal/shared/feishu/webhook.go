package feishu

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidCallbackToken 回调token校验失败
var ErrInvalidCallbackToken = errors.New("invalid callback verification token")

// ParseCardCallback 解析卡片回调。URL验证请求返回 challenge；按钮点击返回动作。
// 未配置 verificationToken 时一律拒绝。
func ParseCardCallback(body []byte, verificationToken string) (challenge string, action *CardActionEvent, err error) {
	var env CallbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", nil, fmt.Errorf("解析回调信封失败: %w", err)
	}

	token := env.Token
	if env.Header != nil {
		token = env.Header.Token
	}
	if verificationToken == "" || token != verificationToken {
		return "", nil, ErrInvalidCallbackToken
	}

	if env.Type == "url_verification" {
		return env.Challenge, nil, nil
	}

	// v2: card.action.trigger
	if env.Header != nil && len(env.Event) > 0 {
		var ev struct {
			Operator struct {
				OpenID string `json:"open_id"`
			} `json:"operator"`
			Action CallbackAction `json:"action"`
		}
		if err := json.Unmarshal(env.Event, &ev); err != nil {
			return "", nil, fmt.Errorf("解析v2回调事件失败: %w", err)
		}
		return "", toActionEvent(ev.Operator.OpenID, &ev.Action), nil
	}

	if env.Action == nil {
		return "", nil, errors.New("回调缺少action")
	}
	return "", toActionEvent(env.OpenID, env.Action), nil
}

func toActionEvent(openID string, a *CallbackAction) *CardActionEvent {
	return &CardActionEvent{
		OperatorOpenID: openID,
		Action:         a.Value["action"],
		AlertID:        a.Value["alert_id"],
	}
}
