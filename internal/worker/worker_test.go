package worker

import (
	"context"
	"encoding/json"
	"testing"

	"escrow-service/config"
	"escrow-service/internal/broker"
	"escrow-service/internal/models"
	"escrow-service/internal/service"
	"escrow-service/internal/store/memstore"
	"escrow-service/internal/util"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// replaySource hands a fixed batch of messages to the handler, once each
type replaySource struct {
	messages []kafka.Message
	failures int
	closed   bool
}

func (s *replaySource) StartConsuming(ctx context.Context, handler broker.MessageHandler) error {
	for _, msg := range s.messages {
		if err := handler(ctx, msg); err != nil {
			s.failures++
		}
	}
	return nil
}

func (s *replaySource) Close() error {
	s.closed = true
	return nil
}

func depositMessage(t *testing.T, userID, amount int64, ref string) kafka.Message {
	t.Helper()
	value, err := json.Marshal(models.DepositConfirmedEvent{
		BaseEvent:      models.NewBaseEvent(models.EventTypeDepositConfirmed),
		UserID:         userID,
		AmountExternal: amount,
		ReferenceID:    ref,
	})
	require.NoError(t, err)
	return kafka.Message{Key: []byte("user-1"), Value: value}
}

func TestDepositWorkerCreditsOnce(t *testing.T) {
	util.SetLogger(zap.NewNop())
	db := memstore.New()
	wallets := service.NewWalletService(db, nil, config.BusinessConfig{PointsPerCurrency: 1000})

	source := &replaySource{messages: []kafka.Message{
		depositMessage(t, 1, 100000, "VNP-1"),
		depositMessage(t, 1, 100000, "VNP-1"),
		depositMessage(t, 1, 30000, "VNP-2"),
		{Value: []byte(`{"event_type":"SOMETHING_ELSE"}`)},
	}}

	w := NewDepositWorker(source, wallets)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())

	assert.True(t, source.closed)
	assert.Zero(t, source.failures)

	wallet, err := wallets.GetWallet(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(130), wallet.AvailablePoints)
	assert.Len(t, db.Transactions(), 2)
}

func TestDepositWorkerReportsGarbage(t *testing.T) {
	util.SetLogger(zap.NewNop())
	wallets := service.NewWalletService(memstore.New(), nil, config.BusinessConfig{PointsPerCurrency: 1000})
	source := &replaySource{messages: []kafka.Message{{Value: []byte("not json")}}}

	require.NoError(t, NewDepositWorker(source, wallets).Start(context.Background()))
	assert.Equal(t, 1, source.failures)
}
