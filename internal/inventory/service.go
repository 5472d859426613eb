package inventory

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStock(ctx context.Context, warehouseID, productID int64) (Stock, error)
	ListStocks(ctx context.Context, filter StockFilter) ([]Stock, int, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	Statistics(ctx context.Context, warehouseID int64) (Statistics, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates stock ledger operations.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	ledger Ledger
	cache  *cache.JSONCache
	group  singleflight.Group
}

// NewService builds Service. cache may be nil.
func NewService(repo RepositoryPort, audit AuditPort, statsCache *cache.JSONCache) *Service {
	return &Service{repo: repo, audit: audit, cache: statsCache}
}

func statsCacheKey(warehouseID int64) string {
	return fmt.Sprintf("inventory:stats:%d", warehouseID)
}

func (s *Service) invalidateStats(ctx context.Context, warehouseIDs ...int64) {
	keys := []string{statsCacheKey(0)}
	for _, id := range warehouseIDs {
		keys = append(keys, statsCacheKey(id))
	}
	_ = s.cache.Invalidate(ctx, keys...)
}

// Adjust applies a signed manual correction and logs one ADJUSTMENT movement.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (Stock, error) {
	var stock Stock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		stock, _, err = s.ledger.Apply(ctx, tx, Change{
			WarehouseID: input.WarehouseID,
			ProductID:   input.ProductID,
			Delta:       input.Quantity,
			Type:        MovementAdjustment,
			Notes:       input.Notes,
			ActorID:     input.ActorID,
		})
		return err
	})
	if err != nil {
		return Stock{}, err
	}
	s.invalidateStats(ctx, input.WarehouseID)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "inventory.adjust",
			Entity:   "stock",
			EntityID: fmt.Sprintf("%d:%d", input.WarehouseID, input.ProductID),
			Meta: map[string]any{
				"quantity": input.Quantity.String(),
				"notes":    input.Notes,
			},
		})
	}
	return stock, nil
}

// Transfer moves stock between two warehouses in one transaction.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	var result TransferResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.ledger.Transfer(ctx, tx, input)
		return err
	})
	if err != nil {
		return TransferResult{}, err
	}
	s.invalidateStats(ctx, input.FromWarehouseID, input.ToWarehouseID)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "inventory.transfer",
			Entity:   "stock",
			EntityID: fmt.Sprintf("%d", input.ProductID),
			Meta: map[string]any{
				"from_warehouse": input.FromWarehouseID,
				"to_warehouse":   input.ToWarehouseID,
				"quantity":       input.Quantity.String(),
			},
		})
	}
	return result, nil
}

// Reserve sets stock aside for a pending document.
func (s *Service) Reserve(ctx context.Context, input ReservationInput) (Stock, error) {
	var stock Stock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		stock, err = s.ledger.Reserve(ctx, tx, input.WarehouseID, input.ProductID, input.Quantity)
		return err
	})
	if err != nil {
		return Stock{}, err
	}
	s.invalidateStats(ctx, input.WarehouseID)
	return stock, nil
}

// Release returns a reservation to available stock.
func (s *Service) Release(ctx context.Context, input ReservationInput) (Stock, error) {
	var stock Stock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		stock, err = s.ledger.Release(ctx, tx, input.WarehouseID, input.ProductID, input.Quantity)
		return err
	})
	if err != nil {
		return Stock{}, err
	}
	s.invalidateStats(ctx, input.WarehouseID)
	return stock, nil
}

// GetStock reads a single stock row.
func (s *Service) GetStock(ctx context.Context, warehouseID, productID int64) (Stock, error) {
	if warehouseID == 0 || productID == 0 {
		return Stock{}, shared.Validationf("warehouse and product are required")
	}
	stock, err := s.repo.GetStock(ctx, warehouseID, productID)
	if err != nil {
		if errors.Is(err, ErrStockNotFound) {
			return Stock{}, shared.NotFoundf("stock for product %d in warehouse %d", productID, warehouseID)
		}
		return Stock{}, err
	}
	return stock, nil
}

// ListStocks lists stock rows with pagination.
func (s *Service) ListStocks(ctx context.Context, filter StockFilter) ([]Stock, shared.Pagination, error) {
	stocks, total, err := s.repo.ListStocks(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return stocks, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// ListMovements reads the movement log.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, filter)
}

// Statistics returns the warehouse summary, cached in Redis and coalesced so
// a thundering herd produces a single aggregate query.
func (s *Service) Statistics(ctx context.Context, warehouseID int64) (Statistics, error) {
	key := statsCacheKey(warehouseID)
	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		var stats Statistics
		err := s.cache.FetchJSON(ctx, key, &stats, func(ctx context.Context) (interface{}, error) {
			return s.repo.Statistics(ctx, warehouseID)
		})
		return stats, err
	})
	if err != nil {
		return Statistics{}, err
	}
	return value.(Statistics), nil
}
