package engine

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// Resolve returns the relationships of one transaction. References to
// missing or deleted records are treated as unlinked.
func (e *Engine) Resolve(ctx context.Context, transactionID string) (*model.Relationships, error) {
	self, err := e.loadLive(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	var (
		parent   *model.Transaction
		children []model.Transaction
		members  []model.Transaction
	)

	g, gctx := errgroup.WithContext(ctx)
	if self.LinkParentID != "" {
		g.Go(func() error {
			p, err := e.store.GetTransaction(gctx, self.LinkParentID)
			if errors.Is(err, common.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if p.IsLive() {
				parent = p
			}
			return nil
		})
	}
	g.Go(func() error {
		var err error
		children, err = e.store.GetRefundChildren(gctx, self.ID)
		return err
	})
	if self.GroupID != "" {
		g.Go(func() error {
			var err error
			members, err = e.store.GetGroupMembers(gctx, self.GroupID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rel := &model.Relationships{
		Self:     *self,
		Parent:   parent,
		Children: children,
		Kind:     model.RelationshipNone,
	}

	var others []model.Transaction
	for _, m := range members {
		if m.ID != self.ID {
			others = append(others, m)
		}
	}
	if len(others) > 0 {
		rel.GroupMembers = others
	}

	switch {
	case parent != nil || len(children) > 0:
		rel.Kind = model.RelationshipRefund
	case len(others) > 0:
		rel.Kind = model.GroupKind(members)
	}

	return rel, nil
}

// RefundChildren returns the live refunds linked to parentID.
func (e *Engine) RefundChildren(ctx context.Context, parentID string) ([]model.Transaction, error) {
	if _, err := e.loadLive(ctx, parentID); err != nil {
		return nil, err
	}
	return e.store.GetRefundChildren(ctx, parentID)
}
