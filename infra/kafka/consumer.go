package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"bazaar/domain/market"
	"bazaar/service"
)

// Command is the wire form of one participant action. The chat-platform
// front end (or anything else) publishes these to the commands topic; this
// consumer is the engine's external trigger surface.
type Command struct {
	Op        string `json:"op"` // list | withdraw | confirm | propose | cancel
	Owner     string `json:"owner"`
	ItemName  string `json:"item,omitempty"`
	Side      string `json:"side,omitempty"`
	Price     string `json:"price,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Consumer reads commands from Kafka and drives the engine. Bad commands
// are logged and committed; they are the publisher's bug, not a reason to
// stall the partition.
type Consumer struct {
	reader  *kafka.Reader
	engine  *service.Engine
	catalog service.Catalog
	log     *zap.Logger
}

func NewConsumer(brokers []string, topic, group string, engine *service.Engine, catalog service.Catalog, log *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: group,
		}),
		engine:  engine,
		catalog: catalog,
		log:     log,
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch command: %w", err)
		}

		var cmd Command
		if err := json.Unmarshal(msg.Value, &cmd); err != nil {
			c.log.Warn("unparseable command", zap.ByteString("value", msg.Value), zap.Error(err))
		} else if err := c.handle(ctx, cmd); err != nil {
			c.log.Warn("command rejected",
				zap.String("op", cmd.Op),
				zap.String("owner", cmd.Owner),
				zap.Error(err))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit offset: %w", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, cmd Command) error {
	switch cmd.Op {
	case "list":
		side, err := market.ParseSide(cmd.Side)
		if err != nil {
			return err
		}
		price, err := market.ParsePrice(cmd.Price)
		if err != nil {
			return err
		}
		itemID, err := c.catalog.Resolve(cmd.ItemName)
		if err != nil {
			return err
		}
		ids, err := c.engine.OnNewIntent(ctx, market.UserID(cmd.Owner), itemID, side, price)
		if err != nil {
			return err
		}
		c.log.Info("listing accepted",
			zap.String("owner", cmd.Owner),
			zap.String("item", cmd.ItemName),
			zap.Int("sessions", len(ids)))
		return nil

	case "withdraw":
		side, err := market.ParseSide(cmd.Side)
		if err != nil {
			return err
		}
		itemID, err := c.catalog.Resolve(cmd.ItemName)
		if err != nil {
			return err
		}
		return c.engine.WithdrawIntent(ctx, market.UserID(cmd.Owner), itemID, side)

	case "confirm":
		id, err := uuid.Parse(cmd.SessionID)
		if err != nil {
			return &market.ValidationError{Field: "session_id", Reason: "not a uuid"}
		}
		_, err = c.engine.Confirm(ctx, id, market.UserID(cmd.Owner))
		return err

	case "propose":
		id, err := uuid.Parse(cmd.SessionID)
		if err != nil {
			return &market.ValidationError{Field: "session_id", Reason: "not a uuid"}
		}
		price, err := market.ParsePrice(cmd.Price)
		if err != nil {
			return err
		}
		_, err = c.engine.ProposePrice(ctx, id, market.UserID(cmd.Owner), price)
		return err

	case "cancel":
		id, err := uuid.Parse(cmd.SessionID)
		if err != nil {
			return &market.ValidationError{Field: "session_id", Reason: "not a uuid"}
		}
		_, err = c.engine.Cancel(ctx, id, market.UserID(cmd.Owner))
		return err

	default:
		return &market.ValidationError{Field: "op", Reason: fmt.Sprintf("unknown operation %q", cmd.Op)}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
