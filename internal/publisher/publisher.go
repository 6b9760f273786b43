package publisher

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"castwatch/internal/model"
)

// Topic is the Redis stream attestation announcements are published on.
const Topic = "attestations"

// Publisher announces persisted attestations on a Redis stream so other
// services can react without polling the table. The table stays the source
// of truth; consumers that miss a message can always re-read it.
type Publisher struct {
	pub    message.Publisher
	client redis.UniversalClient
	logger *zap.Logger
}

type attestationPayload struct {
	Address1    string `json:"address_1"`
	Address2    string `json:"address_2"`
	Timestamp   int64  `json:"attestation_timestamp"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}

// New creates a Publisher on an existing Redis client.
func New(client redis.UniversalClient, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pub, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		watermill.NopLogger{},
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{pub: pub, client: client, logger: logger}, nil
}

// AnnounceAttestation publishes one attestation as JSON.
func (p *Publisher) AnnounceAttestation(_ context.Context, att model.TogetherAttestation) error {
	payload, err := json.Marshal(attestationPayload{
		Address1:    att.Address1,
		Address2:    att.Address2,
		Timestamp:   att.Timestamp,
		TxHash:      att.TxHash,
		BlockNumber: att.BlockNumber,
	})
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.pub.Publish(Topic, msg); err != nil {
		return err
	}
	p.logger.Debug("attestation announced",
		zap.String("address_1", att.Address1), zap.String("address_2", att.Address2),
		zap.String("msg_uuid", msg.UUID))
	return nil
}

// QueueLength returns the number of messages sitting in the stream.
func (p *Publisher) QueueLength(ctx context.Context) (int64, error) {
	return p.client.XLen(ctx, Topic).Result()
}

// Close releases the underlying watermill publisher.
func (p *Publisher) Close() error {
	return p.pub.Close()
}
