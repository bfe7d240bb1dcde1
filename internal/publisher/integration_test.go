//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"announcement_relay/internal/config"
	"announcement_relay/internal/domain"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) config(name string) config.RabbitMQConfig {
	return config.RabbitMQConfig{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-" + name,
		RoutingKey: "test-routing-key-" + name,
		QueueName:  "test-queue-" + name,
	}
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Connection() {
	pub, err := NewRabbitMQ(s.config("connect"), s.logger)
	s.NoError(err)
	s.NotNil(pub)

	err = pub.Close()
	s.NoError(err)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishBatch() {
	cfg := s.config("batch")

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	published := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	batch := &domain.FeedBatch{
		FeedID:      7,
		CanonicalID: "tag:canvas.instructure.com,2024:/courses/1",
		Title:       "CS 101 Announcements",
		Announcements: []domain.Announcement{{
			Title:     "Midterm moved",
			EntryID:   "tag:canvas,announcement-1",
			Published: published,
			Updated:   published,
			Link:      "https://canvas.example/courses/1/announcements/1",
			Author:    "Prof. Ada",
			Content:   "<p>Room C</p>",
		}},
		Subscribers: []domain.Subscriber{
			{ServerID: "guild-1", ChannelID: "chan-1"},
			{ServerID: "guild-1", ChannelID: "chan-2"},
		},
	}

	err = pub.Publish(s.ctx, batch)
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	s.Equal("application/json", msg.ContentType)
	s.NotEmpty(msg.MessageId)

	var received FeedBatchMessage
	err = json.Unmarshal(msg.Body, &received)
	s.Require().NoError(err)

	s.Equal(int64(7), received.Batch.FeedID)
	s.Equal(batch.CanonicalID, received.Batch.CanonicalID)
	s.Equal("CS 101 Announcements", received.Batch.Title)
	s.Require().Len(received.Batch.Announcements, 1)
	s.Equal("Midterm moved", received.Batch.Announcements[0].Title)
	s.True(received.Batch.Announcements[0].Published.Equal(published))
	s.Equal(batch.Subscribers, received.Batch.Subscribers)
	s.False(received.Timestamp.IsZero())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PreservesOrder() {
	cfg := s.config("order")

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	for id := int64(1); id <= 3; id++ {
		s.Require().NoError(pub.Publish(s.ctx, &domain.FeedBatch{FeedID: id}))
	}

	for id := int64(1); id <= 3; id++ {
		msg := s.consumeMessage(cfg)
		s.Require().NotNil(msg)

		var received FeedBatchMessage
		s.Require().NoError(json.Unmarshal(msg.Body, &received))
		s.Equal(id, received.Batch.FeedID)
	}
}

func (s *RabbitMQIntegrationSuite) TestPublisher_MessagePersistence() {
	cfg := s.config("persist")

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	err = pub.Publish(s.ctx, &domain.FeedBatch{FeedID: 1})
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg config.RabbitMQConfig) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msg, ok, err := ch.Get(cfg.QueueName, true)
	deadline := time.Now().Add(5 * time.Second)
	for err == nil && !ok && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
		msg, ok, err = ch.Get(cfg.QueueName, true)
	}
	s.Require().NoError(err)
	if !ok {
		s.Fail("Timeout waiting for message")
		return nil
	}
	return &msg
}
