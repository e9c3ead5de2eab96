package ports

import (
	"context"

	"venue-pickup-service/internal/domain"
)

// ChangePublisher fans out committed ledger mutations to other staff devices.
type ChangePublisher interface {
	PublishLedgerChange(ctx context.Context, change domain.LedgerChange) error
}
