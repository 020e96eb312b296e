package database_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"paygate/app/models/ordermapping"
	"paygate/app/repositories"
	"paygate/pkg/database"
	"paygate/pkg/testutil"
)

func TestIsDuplicateKey(t *testing.T) {
	assert.False(t, database.IsDuplicateKey(nil))
	assert.False(t, database.IsDuplicateKey(errors.New("connection refused")))
	assert.True(t, database.IsDuplicateKey(fmt.Errorf("wrapped: %w", gorm.ErrDuplicatedKey)))
	assert.True(t, database.IsDuplicateKey(errors.New(`ERROR: duplicate key value violates unique constraint "idx_external_order"`)))
}

func TestUniqueIndexViolationIsDetected(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repositories.NewOrderMappingRepository(db)
	ctx := context.Background()

	first := &ordermapping.OrderMapping{
		TransactionID:   1,
		ExternalSystem:  "booking_panel",
		ExternalOrderID: "ORD-1",
		PaymentID:       "PAY-1",
		DeliveryStatus:  ordermapping.DeliveryNone,
	}
	require.NoError(t, repo.Create(ctx, first))

	dup := *first
	dup.ID = 0
	dup.TransactionID = 2
	dup.PaymentID = "PAY-2"
	err := repo.Create(ctx, &dup)
	require.Error(t, err)
	assert.True(t, database.IsDuplicateKey(err))
}
