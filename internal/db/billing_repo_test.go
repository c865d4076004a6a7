package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"shiksha/internal/types"
)

func TestBillingRepository_ChannelUsage(t *testing.T) {
	db := new(mockDBTX)
	repo := NewBillingRepository(db)

	rows := newMockRows([][]any{
		{"EMAIL", int64(120), int64(600)},
		{"SMS", int64(45), int64(1350)},
	})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	usage, err := repo.ChannelUsage(context.Background(), "org_1", start, end)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, types.ChannelUsage{Units: 120, CostPaise: 600}, usage[types.ChannelEmail])
	assert.Equal(t, types.ChannelUsage{Units: 45, CostPaise: 1350}, usage[types.ChannelSMS])
	_, hasPush := usage[types.ChannelPush]
	assert.False(t, hasPush, "channels without activity should be absent")
}

func TestBillingRepository_ChannelUsage_Empty(t *testing.T) {
	db := new(mockDBTX)
	repo := NewBillingRepository(db)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(nil), nil)

	usage, err := repo.ChannelUsage(context.Background(), "org_empty",
		time.Now().AddDate(0, -1, 0), time.Now())
	require.NoError(t, err)
	assert.Empty(t, usage)
}

func TestBillingRepository_StorageBytes(t *testing.T) {
	db := new(mockDBTX)
	repo := NewBillingRepository(db)

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*int64) = 52428800 // 50 MB
			return nil
		},
	}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	total, err := repo.StorageBytes(context.Background(), "org_1")
	require.NoError(t, err)
	assert.Equal(t, int64(52428800), total)
}

func TestBillingRepository_OrganizationBilling_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewBillingRepository(db)

	row := &mockRow{scanErr: pgx.ErrNoRows}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	_, err := repo.OrganizationBilling(context.Background(), "org_ghost")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundOrg, appErr.Code)
}
