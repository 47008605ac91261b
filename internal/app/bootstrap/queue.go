package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/trial-booking/internal/config"
	"github.com/wolfman30/trial-booking/internal/conversation"
	"github.com/wolfman30/trial-booking/pkg/logging"
)

const memoryQueueBuffer = 256

// JobStore is the job status store used by both the handler and the worker.
type JobStore interface {
	conversation.JobRecorder
	conversation.JobUpdater
}

// Messaging is the async turn pipeline.
type Messaging struct {
	Queue    conversation.Queue
	Jobs     JobStore
	InMemory bool
}

// BuildMessaging uses SQS and DynamoDB when a queue URL is configured, and an
// in-process queue otherwise.
func BuildMessaging(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) Messaging {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseMemoryQueue || strings.TrimSpace(cfg.ConversationQueueURL) == "" || awsCfg == nil {
		logger.Info("using in-memory conversation queue")
		return Messaging{
			Queue:    conversation.NewMemoryQueue(memoryQueueBuffer),
			Jobs:     conversation.NewMemoryJobStore(),
			InMemory: true,
		}
	}

	m := Messaging{Queue: conversation.NewSQSQueue(sqs.NewFromConfig(*awsCfg), cfg.ConversationQueueURL)}
	if table := strings.TrimSpace(cfg.ConversationJobsTable); table != "" {
		m.Jobs = conversation.NewJobStore(dynamodb.NewFromConfig(*awsCfg), table, logger)
	} else {
		logger.Warn("CONVERSATION_JOBS_TABLE not set; job status is only visible to this process")
		m.Jobs = conversation.NewMemoryJobStore()
	}
	logger.Info("using SQS conversation queue", "queue_url", cfg.ConversationQueueURL)
	return m
}
