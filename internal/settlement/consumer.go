package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"unykorn/internal/platform/kafka/consumer"
	dErrors "unykorn/pkg/domain-errors"
	"unykorn/pkg/requestcontext"
)

// Consumer applies signed settlement instructions read from the broker.
// Instructions the ledger rejects are logged and skipped; only infrastructure
// failures stop the consumer so the poll is replayed.
type Consumer struct {
	service *Service
	codec   *Codec
	logger  *slog.Logger
}

func NewConsumer(service *Service, codec *Codec, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{service: service, codec: codec, logger: logger}
}

var _ consumer.Handler = (*Consumer)(nil)

func (c *Consumer) Handle(ctx context.Context, msg *consumer.Message) error {
	ctx = requestcontext.WithRequestID(ctx, fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset))

	in, err := c.codec.Verify(string(msg.Value))
	if err != nil {
		c.logger.WarnContext(ctx, "rejected settlement instruction",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	res, err := c.Apply(ctx, in)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			return err
		}
		c.logger.WarnContext(ctx, "settlement instruction not applied",
			"op", string(in.Op),
			"reference", in.Reference,
			"rail", in.Rail,
			"code", string(dErrors.CodeOf(err)),
			"error", err,
		)
		return nil
	}
	c.logger.InfoContext(ctx, "settlement instruction processed",
		"op", string(in.Op),
		"reference", in.Reference,
		"rail", in.Rail,
		"duplicate", res.Duplicate,
	)
	return nil
}

// Apply routes a verified instruction to the adapter.
func (c *Consumer) Apply(ctx context.Context, in Instruction) (Result, error) {
	switch in.Op {
	case OpMint:
		return c.service.MintFromSettlement(ctx, in.Amount, in.Account, in.Reference)
	case OpRedeem:
		return c.service.RedeemToSettlement(ctx, in.Amount, in.Account, in.Reference)
	default:
		return Result{}, dErrors.Newf(dErrors.CodeInvalidInput, "unknown settlement operation %q", in.Op)
	}
}
