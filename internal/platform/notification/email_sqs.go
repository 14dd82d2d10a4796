package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the part of the SQS client the email sender uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSEmailSender hands emails to the mail integration through an SQS queue.
// Success means the message was queued, not that it reached the inbox.
type SQSEmailSender struct {
	client   SQSAPI
	queueURL string
}

func NewSQSEmailSender(client SQSAPI, queueURL string) *SQSEmailSender {
	return &SQSEmailSender{client: client, queueURL: queueURL}
}

type emailMessage struct {
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	QueuedAt time.Time `json:"queued_at"`
}

func (s *SQSEmailSender) SendEmail(ctx context.Context, to, subject, body string) (DeliveryResult, error) {
	payload, err := json.Marshal(emailMessage{To: to, Subject: subject, Body: body, QueuedAt: time.Now().UTC()})
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("encode email message: %w", err)
	}

	out, err := s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind": {DataType: aws.String("String"), StringValue: aws.String("email")},
		},
	})
	if err != nil {
		return DeliveryResult{ProviderStatus: "queue_error"}, fmt.Errorf("enqueue email: %w", err)
	}
	return DeliveryResult{ProviderStatus: "queued", MessageID: aws.ToString(out.MessageId)}, nil
}
