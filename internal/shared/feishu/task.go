package feishu

import (
	"context"
	"fmt"
)

// CreateTask 创建飞书任务，返回任务guid
func (c *FeishuClient) CreateTask(ctx context.Context, req CreateTaskReq) (string, error) {
	var resp CreateTaskResponse
	if err := c.doRequest(ctx, "POST", "/task/v2/tasks", req, &resp); err != nil {
		return "", fmt.Errorf("创建飞书任务失败: %w", err)
	}
	return resp.Data.Task.Guid, nil
}

// CompleteTask 完成飞书任务
func (c *FeishuClient) CompleteTask(ctx context.Context, taskID string) error {
	path := fmt.Sprintf("/task/v2/tasks/%s/complete", taskID)
	if err := c.doRequest(ctx, "POST", path, map[string]interface{}{}, nil); err != nil {
		return fmt.Errorf("完成飞书任务失败: %w", err)
	}
	return nil
}
