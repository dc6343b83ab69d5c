package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alimgiray/bountyscope/internal/models"
	"github.com/alimgiray/bountyscope/pkg/config"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func publishedIssue(githubID int64, amount int64) *models.Issue {
	repo := models.NewRepository(1, "acme", "widgets")
	issue := models.NewIssue(githubID, int(githubID), repo)
	issue.Title = "Fix crash"
	issue.HTMLURL = "https://github.com/acme/widgets/issues/1"
	issue.SetBounty(amount, nil)
	return issue
}

func TestKafkaIssuePublisher(t *testing.T) {
	writer := &fakeWriter{}
	publisher := &KafkaIssuePublisher{writer: writer}

	require.NoError(t, publisher.Publish(context.Background(), nil))
	assert.Empty(t, writer.messages)

	issues := []*models.Issue{publishedIssue(11, 15000), publishedIssue(12, 500)}
	require.NoError(t, publisher.Publish(context.Background(), issues))
	require.Len(t, writer.messages, 2)

	assert.Equal(t, "11", string(writer.messages[0].Key))
	var event IssueEvent
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &event))
	assert.Equal(t, issues[0].ID, event.IssueID)
	assert.Equal(t, "acme/widgets", event.Repository)
	assert.Equal(t, "$150.00", event.BountyDisplay)
	assert.True(t, event.HighValue)

	require.NoError(t, json.Unmarshal(writer.messages[1].Value, &event))
	assert.False(t, event.HighValue)

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestKafkaIssuePublisherWriteError(t *testing.T) {
	publisher := &KafkaIssuePublisher{writer: &fakeWriter{err: errors.New("broker down")}}

	err := publisher.Publish(context.Background(), []*models.Issue{publishedIssue(1, 100)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestNewIssuePublisher(t *testing.T) {
	publisher, err := NewIssuePublisher(config.KafkaConfig{Topic: "bounty-issues"})
	require.NoError(t, err)
	assert.IsType(t, LogIssuePublisher{}, publisher)
	assert.NoError(t, publisher.Publish(context.Background(), []*models.Issue{publishedIssue(1, 100)}))
	assert.NoError(t, publisher.Close())

	publisher, err = NewIssuePublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "bounty-issues"})
	require.NoError(t, err)
	assert.IsType(t, &KafkaIssuePublisher{}, publisher)
	assert.NoError(t, publisher.Close())

	_, err = NewKafkaIssuePublisher(config.KafkaConfig{})
	assert.Error(t, err)
}

func TestNewIssueEvent(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	event := NewIssueEvent(publishedIssue(5, 0), now)

	assert.Equal(t, int64(5), event.GithubID)
	assert.Equal(t, "open", event.Status)
	assert.Equal(t, "$0.00", event.BountyDisplay)
	assert.Equal(t, now, event.PublishedAt)
	assert.Equal(t, 1, event.FetchCount)
}
