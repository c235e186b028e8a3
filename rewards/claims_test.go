package rewards

import (
	"context"
	"testing"

	"matrix/apperr"
	"matrix/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ship = ShippingInfo{Name: "Rahim Uddin", Phone: "01711000000", Address: "House 12, Road 5, Dhanmondi, Dhaka"}

func approvedProduct(t *testing.T, f *fixture, memberID uint) *models.Bonus {
	t.Helper()
	f.cross(t, memberID, 6)
	b := f.bonus(t, memberID, 6)
	_, err := f.engine.Approve(context.Background(), b.ID, "admin")
	require.NoError(t, err)
	return b
}

func TestCancelledClaimFreesBonusForNewClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := approvedProduct(t, f, 10)

	claim, err := f.engine.SubmitClaim(ctx, 10, b.ID, ship)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimPending, claim.Status)
	assert.Equal(t, models.BonusProcessing, f.bonus(t, 10, 6).Status)

	_, err = f.engine.SubmitClaim(ctx, 10, b.ID, ship)
	assert.Equal(t, apperr.CodeDuplicateClaim, apperr.CodeOf(err))

	cancelled, err := f.engine.TransitionClaim(ctx, claim.ID, models.ClaimCancelled, ClaimUpdate{Admin: "ops", Note: "out of stock"})
	require.NoError(t, err)
	assert.Equal(t, models.ClaimCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.ClosedAt)
	assert.Equal(t, models.BonusApproved, f.bonus(t, 10, 6).Status)

	again, err := f.engine.SubmitClaim(ctx, 10, b.ID, ship)
	require.NoError(t, err)
	assert.NotEqual(t, claim.ID, again.ID)
}

func TestClaimDeliveryCompletesBonus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := approvedProduct(t, f, 11)

	claim, err := f.engine.SubmitClaim(ctx, 11, b.ID, ship)
	require.NoError(t, err)

	_, err = f.engine.TransitionClaim(ctx, claim.ID, models.ClaimDelivered, ClaimUpdate{Admin: "ops"})
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	_, err = f.engine.TransitionClaim(ctx, claim.ID, models.ClaimProcessing, ClaimUpdate{Admin: "ops"})
	require.NoError(t, err)

	_, err = f.engine.TransitionClaim(ctx, claim.ID, models.ClaimShipped, ClaimUpdate{Admin: "ops"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	shipped, err := f.engine.TransitionClaim(ctx, claim.ID, models.ClaimShipped, ClaimUpdate{Admin: "ops", Courier: "Sundarban", TrackingNumber: "SB-7781"})
	require.NoError(t, err)
	assert.Equal(t, "SB-7781", shipped.TrackingNumber)
	assert.Equal(t, models.BonusProcessing, f.bonus(t, 11, 6).Status)

	delivered, err := f.engine.TransitionClaim(ctx, claim.ID, models.ClaimDelivered, ClaimUpdate{Admin: "ops"})
	require.NoError(t, err)
	assert.NotNil(t, delivered.DeliveredAt)
	assert.Equal(t, models.BonusCompleted, f.bonus(t, 11, 6).Status)

	_, err = f.engine.TransitionClaim(ctx, claim.ID, models.ClaimDelivered, ClaimUpdate{Admin: "ops"})
	assert.Equal(t, apperr.CodeAlreadyProcessed, apperr.CodeOf(err))

	w, err := f.ledger.Wallet(ctx, 11)
	require.NoError(t, err)
	require.Len(t, w.Rewards, 1)
	assert.Equal(t, "Android smartphone", w.Rewards[0].Item)
}

func TestMemberCancelOnlyWhilePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := approvedProduct(t, f, 12)

	claim, err := f.engine.SubmitClaim(ctx, 12, b.ID, ship)
	require.NoError(t, err)

	_, err = f.engine.CancelClaim(ctx, 99, claim.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.engine.TransitionClaim(ctx, claim.ID, models.ClaimProcessing, ClaimUpdate{Admin: "ops"})
	require.NoError(t, err)

	_, err = f.engine.CancelClaim(ctx, 12, claim.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	rejected, err := f.engine.TransitionClaim(ctx, claim.ID, models.ClaimRejected, ClaimUpdate{Admin: "ops", Note: "address unreachable"})
	require.NoError(t, err)
	assert.Equal(t, "address unreachable", rejected.AdminNote)
	assert.Equal(t, models.BonusApproved, f.bonus(t, 12, 6).Status)

	second, err := f.engine.SubmitClaim(ctx, 12, b.ID, ship)
	require.NoError(t, err)
	cancelled, err := f.engine.CancelClaim(ctx, 12, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimCancelled, cancelled.Status)
	assert.Equal(t, models.BonusApproved, f.bonus(t, 12, 6).Status)
}

func TestSubmitClaimGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cross(t, 13, 6)
	pending := f.bonus(t, 13, 6)
	_, err := f.engine.SubmitClaim(ctx, 13, pending.ID, ship)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	_, err = f.engine.SubmitClaim(ctx, 14, pending.ID, ship)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	f.cross(t, 13, 1)
	cash := f.bonus(t, 13, 1)
	_, err = f.engine.SubmitClaim(ctx, 13, cash.ID, ship)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.engine.SubmitClaim(ctx, 13, pending.ID, ShippingInfo{Name: "A", Phone: "1", Address: "short"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	claims, total, err := f.engine.ListClaims(ctx, ClaimFilter{MemberID: 13}, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, claims)
}
