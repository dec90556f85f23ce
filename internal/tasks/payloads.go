package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypePublishSnapshot = "publish:snapshot"
)

// PublishSnapshotPayload 描述发布作品集静态快照所需的最小信息。
type PublishSnapshotPayload struct {
	PortfolioID   string `json:"portfolio_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewPublishSnapshotTask 构造一个新的作品集快照发布任务。
func NewPublishSnapshotTask(portfolioID, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(PublishSnapshotPayload{
		PortfolioID:   portfolioID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePublishSnapshot, payload), nil
}
