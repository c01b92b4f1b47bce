package storage

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/order-pipeline/internal/core/domain"
	"github.com/rl1809/order-pipeline/internal/pkg/cursor"
)

const DefaultPageSize = 20

// now truncates to microseconds so records survive a round-trip through SQL DATETIME(6).
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func pageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	return n
}

func decodeCursor(logger *zap.Logger, token string) *cursor.Key {
	key, err := cursor.Decode(token)
	if err != nil {
		logger.Warn("invalid_pagination_token", zap.Error(err))
		return nil
	}
	return key
}

func primaryCursor(k domain.RecordKeys) string {
	return cursor.Encode(&cursor.Key{PK: k.PK, SK: k.SK})
}

func indexCursor(k domain.RecordKeys) string {
	return cursor.Encode(&cursor.Key{PK: k.PK, SK: k.SK, IndexPK: k.IndexPK, IndexSK: k.IndexSK})
}

// resolveDecreaseFailure turns a failed conditional decrement into exactly one of
// not-found or insufficient-stock by re-reading the record. The read can be stale;
// the conditional write is what protects the ledger.
func resolveDecreaseFailure(ctx context.Context, get func(context.Context, string) (*domain.Product, error), id string, amount int) error {
	product, err := get(ctx, id)
	if err != nil {
		return err
	}
	return &domain.InsufficientStockError{
		ProductID: id,
		Available: product.Quantity,
		Requested: amount,
	}
}

func validateAmount(amount int) error {
	if amount <= 0 {
		return domain.Validation("amount must be greater than zero")
	}
	return nil
}

// likePattern escapes LIKE wildcards so search is a plain substring match.
func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(search) + "%"
}
