package production

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxRepository is the transactional surface of the production engine. It
// embeds the inventory ledger store so reservations and material movements
// share the order's transaction.
type TxRepository interface {
	inventory.LedgerStore

	GetBOMForUpdate(ctx context.Context, id int64) (BOM, error)
	InsertBOM(ctx context.Context, bom BOM) (BOM, error)
	UpdateBOM(ctx context.Context, bom BOM) error
	ReplaceComponents(ctx context.Context, bomID int64, components []BOMComponent) ([]BOMComponent, error)
	DeactivateOtherBOMs(ctx context.Context, productID, exceptID int64) error
	GetActiveBOM(ctx context.Context, productID int64) (BOM, error)

	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	InsertOrder(ctx context.Context, order Order) (Order, error)
	UpdateOrder(ctx context.Context, order Order) error
	InsertOrderItems(ctx context.Context, orderID int64, items []OrderItem) ([]OrderItem, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]OrderItem, error)
	UpdateOrderItem(ctx context.Context, item OrderItem) error

	InsertPhase(ctx context.Context, phase Phase) (Phase, error)
	CompletePhase(ctx context.Context, orderID int64, phaseNumber int, completedAt time.Time) error

	// NextOrderSequence returns the next number in the per-type yearly sequence.
	NextOrderSequence(ctx context.Context, orderType OrderType, year string) (int, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBOM(ctx context.Context, id int64) (BOM, error)
	ListBOMs(ctx context.Context, productID int64) ([]BOM, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]Order, int, error)
	ListPhases(ctx context.Context, orderID int64) ([]Phase, error)
	History(ctx context.Context, productID int64, limit int) ([]Order, error)
	AvailableQuantity(ctx context.Context, warehouseID, productID int64) (decimal.Decimal, error)
	Statistics(ctx context.Context) (Statistics, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards one-shot operations against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service implements the BOM cost engine and the production order state
// machine.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	ledger      inventory.Ledger
	now         func() time.Time
}

// NewService builds Service. audit and idempotency may be nil.
func NewService(repo RepositoryPort, audit AuditPort, idempotency IdempotencyPort) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idempotency, now: time.Now}
}

func (s *Service) validateBOMInput(input BOMInput) error {
	if input.ProductID == 0 {
		return shared.Validationf("product is required")
	}
	if len(input.Components) == 0 {
		return shared.Validationf("bill of materials requires at least one component")
	}
	for i, c := range input.Components {
		if c.ProductID == 0 {
			return shared.Validationf("component %d: product is required", i+1)
		}
		if c.ProductID == input.ProductID {
			return shared.Validationf("component %d: a product cannot be its own component", i+1)
		}
		if !c.Quantity.IsPositive() {
			return shared.Validationf("component %d: quantity must be positive", i+1)
		}
		if c.UnitCost.IsNegative() {
			return shared.Validationf("component %d: unit cost cannot be negative", i+1)
		}
	}
	return nil
}

func buildComponents(inputs []ComponentInput) []BOMComponent {
	components := make([]BOMComponent, 0, len(inputs))
	for i, in := range inputs {
		components = append(components, BOMComponent{
			ProductID:  in.ProductID,
			Quantity:   in.Quantity,
			UnitCost:   in.UnitCost,
			IsVariable: in.IsVariable,
			Sequence:   i,
		})
	}
	return components
}

// CreateBOM persists a new bill of materials with derived costs. Activating
// it deactivates every other BOM of the same product in the same transaction.
func (s *Service) CreateBOM(ctx context.Context, input BOMInput) (BOM, error) {
	if err := s.validateBOMInput(input); err != nil {
		return BOM{}, err
	}
	output := input.OutputQuantity
	if !output.IsPositive() {
		output = decimal.NewFromInt(1)
	}
	var created BOM
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bom := BOM{
			ProductID:      input.ProductID,
			Version:        input.Version,
			IsActive:       input.IsActive,
			OutputQuantity: output,
			LaborCost:      input.LaborCost,
			OverheadCost:   input.OverheadCost,
			Notes:          input.Notes,
			Components:     buildComponents(input.Components),
		}
		bom.RecalculateCosts()
		var err error
		created, err = tx.InsertBOM(ctx, bom)
		if err != nil {
			return err
		}
		created.Components, err = tx.ReplaceComponents(ctx, created.ID, bom.Components)
		if err != nil {
			return err
		}
		if created.IsActive {
			return tx.DeactivateOtherBOMs(ctx, created.ProductID, created.ID)
		}
		return nil
	})
	if err != nil {
		return BOM{}, err
	}
	s.record(ctx, input.ActorID, "bom.create", "bom", created.ID, map[string]any{"product_id": created.ProductID, "version": created.Version})
	return created, nil
}

// UpdateBOM rewrites components and recomputes every derived cost field.
func (s *Service) UpdateBOM(ctx context.Context, id int64, input BOMInput) (BOM, error) {
	if err := s.validateBOMInput(input); err != nil {
		return BOM{}, err
	}
	var updated BOM
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bom, err := tx.GetBOMForUpdate(ctx, id)
		if err != nil {
			return err
		}
		bom.Version = input.Version
		bom.IsActive = input.IsActive
		if input.OutputQuantity.IsPositive() {
			bom.OutputQuantity = input.OutputQuantity
		}
		bom.LaborCost = input.LaborCost
		bom.OverheadCost = input.OverheadCost
		bom.Notes = input.Notes
		bom.Components = buildComponents(input.Components)
		bom.RecalculateCosts()
		if err := tx.UpdateBOM(ctx, bom); err != nil {
			return err
		}
		bom.Components, err = tx.ReplaceComponents(ctx, bom.ID, bom.Components)
		if err != nil {
			return err
		}
		if bom.IsActive {
			if err := tx.DeactivateOtherBOMs(ctx, bom.ProductID, bom.ID); err != nil {
				return err
			}
		}
		updated = bom
		return nil
	})
	if err != nil {
		return BOM{}, err
	}
	s.record(ctx, input.ActorID, "bom.update", "bom", updated.ID, map[string]any{"version": updated.Version})
	return updated, nil
}

// GetBOM returns one BOM with components.
func (s *Service) GetBOM(ctx context.Context, id int64) (BOM, error) {
	return s.repo.GetBOM(ctx, id)
}

// ListBOMs lists the BOM versions of a product.
func (s *Service) ListBOMs(ctx context.Context, productID int64) ([]BOM, error) {
	return s.repo.ListBOMs(ctx, productID)
}

// CheckAvailability reports, component by component, whether the warehouse
// can cover building qty units with the given BOM.
func (s *Service) CheckAvailability(ctx context.Context, bomID int64, qty decimal.Decimal, warehouseID int64) (AvailabilityReport, error) {
	if !qty.IsPositive() {
		return AvailabilityReport{}, shared.Validationf("quantity must be positive")
	}
	bom, err := s.repo.GetBOM(ctx, bomID)
	if err != nil {
		return AvailabilityReport{}, err
	}
	report := AvailabilityReport{BOMID: bomID, WarehouseID: warehouseID, Quantity: qty, CanProduce: true}
	for _, c := range bom.Components {
		required := c.Quantity.Mul(qty)
		available, err := s.repo.AvailableQuantity(ctx, warehouseID, c.ProductID)
		if err != nil {
			return AvailabilityReport{}, err
		}
		entry := ComponentAvailability{
			ProductID:   c.ProductID,
			Required:    required,
			Available:   available,
			IsAvailable: !available.LessThan(required),
		}
		if !entry.IsAvailable {
			entry.Shortage = required.Sub(available)
			report.CanProduce = false
		}
		report.Components = append(report.Components, entry)
	}
	return report, nil
}

func orderPrefix(t OrderType) string {
	if t == TypeDisassembly {
		return "DIS"
	}
	return "ASM"
}

// CreateAssembly creates a draft assembly order from the product's active
// BOM, snapshotting component quantities and costs.
func (s *Service) CreateAssembly(ctx context.Context, input AssemblyInput) (Order, error) {
	if input.ProductID == 0 || input.WarehouseID == 0 {
		return Order{}, shared.Validationf("product and warehouse are required")
	}
	if !input.Quantity.IsPositive() {
		return Order{}, shared.Validationf("quantity must be positive")
	}
	var created Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bom, err := tx.GetActiveBOM(ctx, input.ProductID)
		if err != nil {
			return err
		}
		order, items := s.buildOrder(TypeAssembly, bom, input.ProductID, input.Quantity, input.WarehouseID, bom.Components)
		order.ScheduledDate = input.ScheduledDate
		order.Notes = input.Notes
		order.CreatedBy = input.ActorID
		created, err = s.insertOrder(ctx, tx, order, items)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, input.ActorID, "production.create", "production_order", created.ID, map[string]any{"number": created.Number})
	return created, nil
}

// CreateDisassembly creates a draft disassembly order. A phased step links to
// its parent order and records a phase snapshot of the components handled.
func (s *Service) CreateDisassembly(ctx context.Context, input DisassemblyInput) (Order, error) {
	if input.ProductID == 0 || input.WarehouseID == 0 {
		return Order{}, shared.Validationf("product and warehouse are required")
	}
	if !input.Quantity.IsPositive() {
		return Order{}, shared.Validationf("quantity must be positive")
	}
	if input.ParentOrderID != 0 && input.Phase <= 0 {
		return Order{}, shared.Validationf("phased disassembly requires a positive phase number")
	}
	var created Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bom, err := tx.GetActiveBOM(ctx, input.ProductID)
		if err != nil {
			return err
		}
		components := bom.Components
		if len(input.PhaseComponents) > 0 {
			components, err = phaseSubset(bom, input.PhaseComponents)
			if err != nil {
				return err
			}
		}
		if input.ParentOrderID != 0 {
			parent, err := tx.GetOrderForUpdate(ctx, input.ParentOrderID)
			if err != nil {
				return err
			}
			if parent.Type != TypeDisassembly {
				return shared.Validationf("parent order %s is not a disassembly", parent.Number)
			}
			if parent.Status.Terminal() {
				return shared.BusinessRulef("parent order %s is %s", parent.Number, parent.Status)
			}
		}
		order, items := s.buildOrder(TypeDisassembly, bom, input.ProductID, input.Quantity, input.WarehouseID, components)
		order.ScheduledDate = input.ScheduledDate
		order.ParentOrderID = input.ParentOrderID
		order.Phase = input.Phase
		order.Notes = input.Notes
		order.CreatedBy = input.ActorID
		created, err = s.insertOrder(ctx, tx, order, items)
		if err != nil {
			return err
		}
		if input.Phase > 0 {
			snapshot := make([]PhaseComponent, 0, len(items))
			for _, item := range created.Items {
				snapshot = append(snapshot, PhaseComponent{ProductID: item.ProductID, Quantity: item.PlannedQuantity})
			}
			phaseOwner := created.ID
			if input.ParentOrderID != 0 {
				phaseOwner = input.ParentOrderID
			}
			if _, err := tx.InsertPhase(ctx, Phase{
				OrderID:     phaseOwner,
				PhaseNumber: input.Phase,
				Name:        input.PhaseName,
				Status:      StatusDraft,
				Components:  snapshot,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, input.ActorID, "production.create", "production_order", created.ID, map[string]any{"number": created.Number})
	return created, nil
}

// phaseSubset resolves the requested phase components against the BOM.
func phaseSubset(bom BOM, requested []PhaseComponent) ([]BOMComponent, error) {
	byProduct := make(map[int64]BOMComponent, len(bom.Components))
	for _, c := range bom.Components {
		byProduct[c.ProductID] = c
	}
	subset := make([]BOMComponent, 0, len(requested))
	for _, pc := range requested {
		c, ok := byProduct[pc.ProductID]
		if !ok {
			return nil, shared.Validationf("product %d is not a component of this bill of materials", pc.ProductID)
		}
		if pc.Quantity.IsPositive() {
			c.Quantity = pc.Quantity
		}
		subset = append(subset, c)
	}
	return subset, nil
}

func (s *Service) buildOrder(orderType OrderType, bom BOM, productID int64, qty decimal.Decimal, warehouseID int64, components []BOMComponent) (Order, []OrderItem) {
	order := Order{
		Type:            orderType,
		Status:          StatusDraft,
		ProductID:       productID,
		BOMID:           bom.ID,
		WarehouseID:     warehouseID,
		PlannedQuantity: qty,
		LaborCost:       bom.LaborCost.Mul(qty),
		OverheadCost:    bom.OverheadCost.Mul(qty),
	}
	items := make([]OrderItem, 0, len(components))
	material := decimal.Zero
	for _, c := range components {
		planned := c.Quantity.Mul(qty)
		total := planned.Mul(c.UnitCost)
		material = material.Add(total)
		items = append(items, OrderItem{
			ProductID:       c.ProductID,
			PlannedQuantity: planned,
			UnitCost:        c.UnitCost,
			TotalCost:       total,
			IsVariable:      c.IsVariable,
		})
	}
	order.MaterialCost = material
	return order, items
}

func (s *Service) insertOrder(ctx context.Context, tx TxRepository, order Order, items []OrderItem) (Order, error) {
	year := s.now().Format("2006")
	seq, err := tx.NextOrderSequence(ctx, order.Type, year)
	if err != nil {
		return Order{}, err
	}
	order.Number = fmt.Sprintf("%s-%s-%05d", orderPrefix(order.Type), year, seq)
	created, err := tx.InsertOrder(ctx, order)
	if err != nil {
		return Order{}, err
	}
	created.Items, err = tx.InsertOrderItems(ctx, created.ID, items)
	if err != nil {
		return Order{}, err
	}
	return created, nil
}

// Confirm moves a draft order to CONFIRMED, reserving every input it will
// consume. The availability of all lines is checked before the first
// reservation so a shortfall leaves nothing half reserved.
func (s *Service) Confirm(ctx context.Context, id, actorID int64) (Order, error) {
	var confirmed Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status != StatusDraft {
			return shared.BusinessRulef("order %s is %s and cannot be confirmed", order.Number, order.Status)
		}
		if order.Type == TypeAssembly {
			items, err := tx.GetOrderItems(ctx, order.ID)
			if err != nil {
				return err
			}
			for _, item := range items {
				stock, err := tx.GetStockForUpdate(ctx, order.WarehouseID, item.ProductID)
				if err != nil {
					if errors.Is(err, inventory.ErrStockNotFound) {
						return shared.InsufficientStockf(
							"product %d in warehouse %d: no stock on hand, required %s",
							item.ProductID, order.WarehouseID, item.PlannedQuantity.String())
					}
					return err
				}
				if stock.Available().LessThan(item.PlannedQuantity) {
					return shared.InsufficientStockf(
						"product %d in warehouse %d: available %s, required %s",
						item.ProductID, order.WarehouseID, stock.Available().String(), item.PlannedQuantity.String())
				}
			}
			for i := range items {
				if _, err := s.ledger.Reserve(ctx, tx, order.WarehouseID, items[i].ProductID, items[i].PlannedQuantity); err != nil {
					return err
				}
				items[i].Reserved = true
				if err := tx.UpdateOrderItem(ctx, items[i]); err != nil {
					return err
				}
			}
		} else {
			// Disassembly consumes the assembled product itself.
			if _, err := s.ledger.Reserve(ctx, tx, order.WarehouseID, order.ProductID, order.PlannedQuantity); err != nil {
				return err
			}
		}
		order.Status = StatusConfirmed
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		confirmed = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, actorID, "production.confirm", "production_order", confirmed.ID, map[string]any{"number": confirmed.Number})
	return confirmed, nil
}

// Start moves a confirmed order to IN_PROGRESS.
func (s *Service) Start(ctx context.Context, id, actorID int64) (Order, error) {
	var started Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status != StatusConfirmed {
			return shared.BusinessRulef("order %s is %s and cannot be started", order.Number, order.Status)
		}
		now := s.now()
		order.Status = StatusInProgress
		order.StartedAt = &now
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		started = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, actorID, "production.start", "production_order", started.ID, map[string]any{"number": started.Number})
	return started, nil
}

func actualsByProduct(actuals []ActualComponent) map[int64]decimal.Decimal {
	m := make(map[int64]decimal.Decimal, len(actuals))
	for _, a := range actuals {
		m[a.ProductID] = a.Quantity
	}
	return m
}

func (s *Service) guardCompletion(ctx context.Context, id int64) (string, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return "", err
	}
	key := "production:complete:" + order.Number
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "production"); err != nil {
			return "", err
		}
	}
	return key, nil
}

func (s *Service) releaseGuard(ctx context.Context, key string) {
	if s.idempotency != nil {
		_ = s.idempotency.Delete(ctx, key)
	}
}

// CompleteAssembly finishes an in-progress assembly: reservations are
// released, actual component quantities are consumed, the output is booked
// in and the material cost is recomputed from actual usage.
func (s *Service) CompleteAssembly(ctx context.Context, id, actorID int64, actualQty decimal.Decimal, actuals []ActualComponent) (Order, error) {
	if !actualQty.IsPositive() {
		return Order{}, shared.Validationf("actual quantity must be positive")
	}
	idemKey, err := s.guardCompletion(ctx, id)
	if err != nil {
		return Order{}, err
	}
	overrides := actualsByProduct(actuals)

	var completed Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Type != TypeAssembly {
			return shared.Validationf("order %s is not an assembly order", order.Number)
		}
		if order.Status != StatusInProgress {
			return shared.BusinessRulef("order %s is %s and cannot be completed", order.Number, order.Status)
		}
		items, err := tx.GetOrderItems(ctx, order.ID)
		if err != nil {
			return err
		}
		material := decimal.Zero
		for i := range items {
			item := &items[i]
			actual := item.PlannedQuantity
			if override, ok := overrides[item.ProductID]; ok {
				if !item.IsVariable && !override.Equal(item.PlannedQuantity) {
					return shared.Validationf(
						"component %d is fixed; actual %s must match planned %s",
						item.ProductID, override.String(), item.PlannedQuantity.String())
				}
				if !override.IsPositive() {
					return shared.Validationf("component %d: actual quantity must be positive", item.ProductID)
				}
				actual = override
			}
			if item.Reserved {
				if _, err := s.ledger.Release(ctx, tx, order.WarehouseID, item.ProductID, item.PlannedQuantity); err != nil {
					return err
				}
			}
			if _, _, err := s.ledger.ApplyDocumentMovement(ctx, tx, inventory.Change{
				WarehouseID:     order.WarehouseID,
				ProductID:       item.ProductID,
				Delta:           actual.Neg(),
				Type:            inventory.MovementProduction,
				ReferenceType:   "production_order",
				ReferenceID:     order.ID,
				ReferenceNumber: order.Number,
			}); err != nil {
				return err
			}
			item.ActualQuantity = actual
			item.TotalCost = actual.Mul(item.UnitCost)
			item.Reserved = false
			material = material.Add(item.TotalCost)
			if err := tx.UpdateOrderItem(ctx, *item); err != nil {
				return err
			}
		}
		if _, _, err := s.ledger.ApplyDocumentMovement(ctx, tx, inventory.Change{
			WarehouseID:     order.WarehouseID,
			ProductID:       order.ProductID,
			Delta:           actualQty,
			Type:            inventory.MovementProduction,
			ReferenceType:   "production_order",
			ReferenceID:     order.ID,
			ReferenceNumber: order.Number,
		}); err != nil {
			return err
		}
		now := s.now()
		order.Status = StatusCompleted
		order.ActualQuantity = actualQty
		order.MaterialCost = material
		order.CompletedAt = &now
		if actorID != 0 {
			order.CompletedBy = &actorID
		}
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		order.Items = items
		completed = order
		return nil
	})
	if err != nil {
		s.releaseGuard(ctx, idemKey)
		return Order{}, err
	}
	s.record(ctx, actorID, "production.complete", "production_order", completed.ID, map[string]any{"number": completed.Number})
	return completed, nil
}

// CompleteDisassembly tears the assembled product down and books the
// recovered components back in. Draft and confirmed orders may complete
// directly without passing through IN_PROGRESS.
func (s *Service) CompleteDisassembly(ctx context.Context, id, actorID int64, recovered []ActualComponent) (Order, error) {
	idemKey, err := s.guardCompletion(ctx, id)
	if err != nil {
		return Order{}, err
	}
	overrides := actualsByProduct(recovered)

	var completed Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Type != TypeDisassembly {
			return shared.Validationf("order %s is not a disassembly order", order.Number)
		}
		if order.Status.Terminal() {
			return shared.BusinessRulef("order %s is %s and cannot be completed", order.Number, order.Status)
		}
		// Confirmation reserved the assembled product; give that back
		// before consuming it.
		if order.Status != StatusDraft {
			if _, err := s.ledger.Release(ctx, tx, order.WarehouseID, order.ProductID, order.PlannedQuantity); err != nil {
				return err
			}
		}
		if _, _, err := s.ledger.ApplyDocumentMovement(ctx, tx, inventory.Change{
			WarehouseID:     order.WarehouseID,
			ProductID:       order.ProductID,
			Delta:           order.PlannedQuantity.Neg(),
			Type:            inventory.MovementProduction,
			ReferenceType:   "production_order",
			ReferenceID:     order.ID,
			ReferenceNumber: order.Number,
		}); err != nil {
			return err
		}
		items, err := tx.GetOrderItems(ctx, order.ID)
		if err != nil {
			return err
		}
		for i := range items {
			item := &items[i]
			actual := item.PlannedQuantity
			if override, ok := overrides[item.ProductID]; ok {
				if override.IsNegative() {
					return shared.Validationf("component %d: recovered quantity cannot be negative", item.ProductID)
				}
				actual = override
			}
			if actual.IsPositive() {
				if _, _, err := s.ledger.ApplyDocumentMovement(ctx, tx, inventory.Change{
					WarehouseID:     order.WarehouseID,
					ProductID:       item.ProductID,
					Delta:           actual,
					Type:            inventory.MovementProduction,
					ReferenceType:   "production_order",
					ReferenceID:     order.ID,
					ReferenceNumber: order.Number,
				}); err != nil {
					return err
				}
			}
			item.ActualQuantity = actual
			item.TotalCost = actual.Mul(item.UnitCost)
			if err := tx.UpdateOrderItem(ctx, *item); err != nil {
				return err
			}
		}
		now := s.now()
		order.Status = StatusCompleted
		order.ActualQuantity = order.PlannedQuantity
		order.CompletedAt = &now
		if actorID != 0 {
			order.CompletedBy = &actorID
		}
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		if order.Phase > 0 {
			phaseOwner := order.ID
			if order.ParentOrderID != 0 {
				phaseOwner = order.ParentOrderID
			}
			if err := tx.CompletePhase(ctx, phaseOwner, order.Phase, now); err != nil {
				return err
			}
		}
		order.Items = items
		completed = order
		return nil
	})
	if err != nil {
		s.releaseGuard(ctx, idemKey)
		return Order{}, err
	}
	s.record(ctx, actorID, "production.complete", "production_order", completed.ID, map[string]any{"number": completed.Number})
	return completed, nil
}

// Cancel voids any non-terminal order, releasing reservations first.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) (Order, error) {
	var cancelled Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			return shared.BusinessRulef("order %s is %s and cannot be cancelled", order.Number, order.Status)
		}
		if order.Status != StatusDraft {
			if order.Type == TypeAssembly {
				items, err := tx.GetOrderItems(ctx, order.ID)
				if err != nil {
					return err
				}
				for i := range items {
					if !items[i].Reserved {
						continue
					}
					if _, err := s.ledger.Release(ctx, tx, order.WarehouseID, items[i].ProductID, items[i].PlannedQuantity); err != nil {
						return err
					}
					items[i].Reserved = false
					if err := tx.UpdateOrderItem(ctx, items[i]); err != nil {
						return err
					}
				}
			} else {
				if _, err := s.ledger.Release(ctx, tx, order.WarehouseID, order.ProductID, order.PlannedQuantity); err != nil {
					return err
				}
			}
		}
		order.Status = StatusCancelled
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		cancelled = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, actorID, "production.cancel", "production_order", cancelled.ID, map[string]any{"number": cancelled.Number})
	return cancelled, nil
}

// Get returns the order with its items.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// List returns orders matching the filter plus pagination metadata.
func (s *Service) List(ctx context.Context, filter OrderFilter) ([]Order, shared.Pagination, error) {
	orders, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return orders, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// ListPhases returns the phase snapshots recorded against an order.
func (s *Service) ListPhases(ctx context.Context, orderID int64) ([]Phase, error) {
	return s.repo.ListPhases(ctx, orderID)
}

// History returns the completed orders of a product, newest first.
func (s *Service) History(ctx context.Context, productID int64, limit int) ([]Order, error) {
	return s.repo.History(ctx, productID, limit)
}

// GetStatistics summarises orders by status and total output.
func (s *Service) GetStatistics(ctx context.Context) (Statistics, error) {
	return s.repo.Statistics(ctx)
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
