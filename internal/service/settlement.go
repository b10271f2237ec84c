package service

import (
	"context"
	"fmt"

	"escrow-service/internal/ledger"
	"escrow-service/internal/models"
	"escrow-service/internal/store"
	"escrow-service/internal/util"

	"github.com/shopspring/decimal"
)

// releaseEscrow pays an escrowed order out to the seller minus commission.
// Buyer and seller wallets must already be locked.
func releaseEscrow(ctx context.Context, repo store.Repository, order *models.Order, wallets map[int64]*models.Wallet, rate decimal.Decimal) (int64, error) {
	buyer, seller := wallets[order.BuyerID], wallets[order.SellerID]
	if buyer == nil || seller == nil {
		return 0, fmt.Errorf("wallets for order %d not locked", order.ID)
	}

	ref := orderRef(order.ID)
	payee, commission := ledger.SplitCommission(order.AmountPoints, rate)

	if _, err := ledger.Unfreeze(ctx, repo, buyer, ledger.Entry{
		Amount: order.AmountPoints, ReferenceID: ref, Remarks: "Escrow released to seller",
	}); err != nil {
		return 0, err
	}
	if payee > 0 {
		if _, err := ledger.CreditAvailable(ctx, repo, seller, ledger.Entry{
			Amount: payee, ReferenceID: ref, Remarks: "Sale revenue",
		}); err != nil {
			return 0, err
		}
	}
	if _, err := ledger.RecordCommission(ctx, repo, order.BuyerID, commission, ref, "Platform commission"); err != nil {
		return 0, err
	}

	util.CommissionPointsTotal.Add(float64(commission))
	return commission, nil
}

// refundEscrow returns an escrowed order amount to the buyer's available balance
func refundEscrow(ctx context.Context, repo store.Repository, order *models.Order, buyer *models.Wallet, remarks string) error {
	_, err := ledger.RefundToAvailable(ctx, repo, buyer, ledger.Entry{
		Amount: order.AmountPoints, ReferenceID: orderRef(order.ID), Remarks: remarks,
	})
	return err
}
