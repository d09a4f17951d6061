package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/broker"
	"storefront/internal/domain"
	"storefront/internal/metrics"
	orderrepo "storefront/internal/repository/order"
	"storefront/internal/service/catalog"
	"storefront/internal/tracing"
)

// MergeBranch names the login reconciliation path that ran.
type MergeBranch string

const (
	MergeBoth          MergeBranch = "both"
	MergeAnonymousOnly MergeBranch = "anonymous_only"
	MergeProfileOnly   MergeBranch = "profile_only"
	MergeNone          MergeBranch = "none"
)

// rebuildLines derives one line per basket entry that still resolves in the
// catalog, priced at the effective unit price. It returns the ids it dropped.
func rebuildLines(b domain.Basket, entries map[int64]catalog.Entry) ([]domain.OrderLine, decimal.Decimal, []int64) {
	var (
		lines   []domain.OrderLine
		dropped []int64
		total   = decimal.Zero
	)
	for _, e := range b.Entries() {
		c, ok := entries[e.ProductID]
		if !ok {
			dropped = append(dropped, e.ProductID)
			continue
		}
		line := domain.OrderLine{ProductID: e.ProductID, Quantity: e.Quantity, UnitPrice: c.EffectivePrice()}
		lines = append(lines, line)
		total = total.Add(line.Total())
	}
	return lines, total, dropped
}

// rebuild replaces o's lines from ident's current basket and clears the stale
// flag. It does not persist.
func (s *Service) rebuild(ctx context.Context, ident domain.Identity, o *domain.Order) error {
	ctx, span := tracing.StartSpan(ctx, "order.rebuild")
	defer span.End()

	b, err := s.basket.Contents(ctx, ident)
	if err != nil {
		return fmt.Errorf("load basket: %w", err)
	}
	entries, err := s.catalog.Lookup(ctx, b.ProductIDs())
	if err != nil {
		return fmt.Errorf("catalog lookup: %w", err)
	}

	lines, total, dropped := rebuildLines(b, entries)
	for _, id := range dropped {
		s.logger.Debug("dropping unresolvable basket entry", zap.Int64("order_id", o.ID), zap.Int64("product_id", id))
	}
	metrics.OrderLinesDroppedTotal.Add(float64(len(dropped)))
	metrics.OrderRebuildsTotal.Inc()

	o.Lines = lines
	o.TotalCost = total
	o.Stale = false
	return nil
}

// OnLogin reconciles the visitor's anonymous order with the profile's open
// order. It runs before the session id rotates, so basket pushes land in
// anonSessionID, which then carries over to the authenticated session.
func (s *Service) OnLogin(ctx context.Context, anonSessionID string, profileID int64) (MergeBranch, error) {
	ctx, span := tracing.StartSpan(ctx, "order.OnLogin")
	defer span.End()

	anon := domain.AnonymousIdentity(anonSessionID)
	registered := domain.ProfileIdentity(anonSessionID, profileID)

	var (
		branch    = MergeNone
		push      []domain.BasketEntry
		surviving *int64
		deleted   *int64
	)
	err := s.repo.WithinTx(ctx, func(tx orderrepo.Repository) error {
		a, err := openOrNil(ctx, tx, anon)
		if err != nil {
			return err
		}
		u, err := openOrNil(ctx, tx, registered)
		if err != nil {
			return err
		}

		switch {
		case a != nil && u != nil:
			branch = MergeBoth
			a.AssignProfile(profileID)
			a.AbsorbLines(u.Lines)
			push = entriesOf(u.Lines)
			// U goes first so A can take over the profile's open-order slot.
			if err := tx.Delete(ctx, u.ID); err != nil {
				return fmt.Errorf("delete absorbed order %d: %w", u.ID, err)
			}
			if err := tx.Save(ctx, a); err != nil {
				return fmt.Errorf("save merged order %d: %w", a.ID, err)
			}
			surviving, deleted = &a.ID, &u.ID
		case a != nil:
			branch = MergeAnonymousOnly
			if err := tx.Delete(ctx, a.ID); err != nil {
				return fmt.Errorf("delete anonymous order %d: %w", a.ID, err)
			}
			deleted = &a.ID
		case u != nil:
			// U is left as is; only its lines are pushed back.
			branch = MergeProfileOnly
			push = entriesOf(u.Lines)
			surviving = &u.ID
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if err := s.basket.Merge(ctx, registered, push); err != nil {
		return branch, fmt.Errorf("push order lines into basket: %w", err)
	}

	metrics.LoginMergesTotal.WithLabelValues(string(branch)).Inc()
	if branch != MergeNone {
		s.publish(ctx, func(ctx context.Context) error {
			return s.events.PublishBasketMerged(ctx, broker.NewBasketMerged(profileID, string(branch), surviving, deleted, s.now()))
		})
	}
	s.logger.Info("login reconciled",
		zap.Int64("profile_id", profileID),
		zap.String("branch", string(branch)),
		zap.Int("pushed_lines", len(push)),
	)
	return branch, nil
}

func openOrNil(ctx context.Context, repo orderrepo.Repository, owner domain.Identity) (*domain.Order, error) {
	o, err := repo.GetOpen(ctx, owner)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return o, err
}

func entriesOf(lines []domain.OrderLine) []domain.BasketEntry {
	out := make([]domain.BasketEntry, 0, len(lines))
	for _, l := range lines {
		out = append(out, domain.BasketEntry{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return out
}
