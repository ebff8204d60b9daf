package sqs

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type mockSQS struct {
	receiveInput *sqs.ReceiveMessageInput
	receiveOut   *sqs.ReceiveMessageOutput
	receiveErr   error
	deleted      []string
	deleteErr    error
}

func (m *mockSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	m.receiveInput = params
	if m.receiveErr != nil {
		return nil, m.receiveErr
	}
	return m.receiveOut, nil
}

func (m *mockSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	m.deleted = append(m.deleted, *params.ReceiptHandle)
	return &sqs.DeleteMessageOutput{}, nil
}

func TestNewConsumer_RequiresQueueURL(t *testing.T) {
	if _, err := newConsumer(&mockSQS{}, Config{}, nil); err == nil {
		t.Fatal("expected error for missing queue URL")
	}
}

func TestReceiveMessages(t *testing.T) {
	tests := []struct {
		name      string
		max       int
		wantBatch int32
		out       *sqs.ReceiveMessageOutput
		wantCount int
	}{
		{
			name:      "skips incomplete messages",
			max:       5,
			wantBatch: 5,
			out: &sqs.ReceiveMessageOutput{Messages: []types.Message{
				{MessageId: aws.String("1"), ReceiptHandle: aws.String("r1"), Body: aws.String(`{}`)},
				{MessageId: aws.String("2"), ReceiptHandle: nil, Body: aws.String(`{}`)},
			}},
			wantCount: 1,
		},
		{name: "clamps upper bound", max: 50, wantBatch: 10, out: &sqs.ReceiveMessageOutput{}},
		{name: "clamps lower bound", max: 0, wantBatch: 1, out: &sqs.ReceiveMessageOutput{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockSQS{receiveOut: tt.out}
			c, err := newConsumer(mock, Config{QueueURL: "https://sqs/queue"}, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			msgs, err := c.ReceiveMessages(context.Background(), tt.max)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(msgs) != tt.wantCount {
				t.Errorf("expected %d messages, got %d", tt.wantCount, len(msgs))
			}
			if mock.receiveInput.MaxNumberOfMessages != tt.wantBatch {
				t.Errorf("expected batch %d, got %d", tt.wantBatch, mock.receiveInput.MaxNumberOfMessages)
			}
			if mock.receiveInput.WaitTimeSeconds != 20 {
				t.Errorf("expected default long poll, got %d", mock.receiveInput.WaitTimeSeconds)
			}
		})
	}
}

func TestReceiveMessages_Error(t *testing.T) {
	c, _ := newConsumer(&mockSQS{receiveErr: errors.New("boom")}, Config{QueueURL: "q"}, nil)
	if _, err := c.ReceiveMessages(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeleteMessage(t *testing.T) {
	mock := &mockSQS{}
	c, _ := newConsumer(mock, Config{QueueURL: "q"}, nil)
	if err := c.DeleteMessage(context.Background(), "r1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.deleted) != 1 || mock.deleted[0] != "r1" {
		t.Errorf("unexpected deletes %v", mock.deleted)
	}

	mock.deleteErr = errors.New("gone")
	if err := c.DeleteMessage(context.Background(), "r2"); err == nil {
		t.Error("expected delete error")
	}
}
