package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alimgiray/bountyscope/internal/models"
	"github.com/alimgiray/bountyscope/pkg/config"
	"github.com/alimgiray/bountyscope/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// IssuePublisher broadcasts the issues touched by a crawl to downstream consumers
type IssuePublisher interface {
	Publish(ctx context.Context, issues []*models.Issue) error
	Close() error
}

// IssueEvent is the message published for each touched issue
type IssueEvent struct {
	IssueID       string    `json:"issue_id"`
	GithubID      int64     `json:"github_id"`
	Repository    string    `json:"repository"`
	Title         string    `json:"title"`
	URL           string    `json:"url"`
	Status        string    `json:"status"`
	BountyAmount  int64     `json:"bounty_amount"`
	BountyDisplay string    `json:"bounty_display"`
	BountySource  *string   `json:"bounty_source,omitempty"`
	HighValue     bool      `json:"high_value"`
	FetchCount    int       `json:"fetch_count"`
	PublishedAt   time.Time `json:"published_at"`
}

// NewIssueEvent builds the event for issue
func NewIssueEvent(issue *models.Issue, now time.Time) IssueEvent {
	return IssueEvent{
		IssueID:       issue.ID,
		GithubID:      issue.GithubID,
		Repository:    issue.RepositoryFullName,
		Title:         issue.Title,
		URL:           issue.HTMLURL,
		Status:        string(issue.Status),
		BountyAmount:  issue.BountyAmount,
		BountyDisplay: issue.BountyFormatted(),
		BountySource:  issue.BountySource,
		HighValue:     issue.IsHighValue(),
		FetchCount:    issue.FetchCount,
		PublishedAt:   now,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaIssuePublisher writes one JSON message per issue, keyed by upstream id
type KafkaIssuePublisher struct {
	writer messageWriter
}

// NewKafkaIssuePublisher creates a publisher for the configured brokers and topic
func NewKafkaIssuePublisher(cfg config.KafkaConfig) (*KafkaIssuePublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}

	return &KafkaIssuePublisher{writer: writer}, nil
}

// Publish sends all issues in one batch
func (p *KafkaIssuePublisher) Publish(ctx context.Context, issues []*models.Issue) error {
	if len(issues) == 0 {
		return nil
	}

	now := time.Now().UTC()
	msgs := make([]kafka.Message, 0, len(issues))
	for _, issue := range issues {
		value, err := json.Marshal(NewIssueEvent(issue, now))
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(fmt.Sprintf("%d", issue.GithubID)),
			Value: value,
			Time:  now,
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write messages to kafka: %w", err)
	}
	return nil
}

// Close closes the Kafka writer
func (p *KafkaIssuePublisher) Close() error {
	return p.writer.Close()
}

// LogIssuePublisher only logs the touched issues; used when Kafka is not configured
type LogIssuePublisher struct{}

func (LogIssuePublisher) Publish(ctx context.Context, issues []*models.Issue) error {
	for _, issue := range issues {
		logger.WithField("issue_github_id", issue.GithubID).
			WithField("bounty", issue.BountyFormatted()).
			Debug("Issue touched by crawl")
	}
	return nil
}

func (LogIssuePublisher) Close() error { return nil }

// NewIssuePublisher returns a Kafka publisher when brokers are configured, a log publisher otherwise
func NewIssuePublisher(cfg config.KafkaConfig) (IssuePublisher, error) {
	if len(cfg.Brokers) == 0 {
		return LogIssuePublisher{}, nil
	}
	return NewKafkaIssuePublisher(cfg)
}
