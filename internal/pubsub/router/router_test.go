package router

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/casebill/casebill/internal/config"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/pubsub/memory"
	"github.com/casebill/casebill/internal/sentry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterRetriesAndPoisons(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Notification.MaxRetries = 2
	cfg.Retry.InitialInterval = time.Millisecond
	cfg.Retry.MaxInterval = 2 * time.Millisecond
	cfg.Retry.MaxElapsedTime = time.Second

	log := logger.NewNoopLogger()
	ps := memory.NewPubSub(log)
	r, err := NewRouter(cfg, ps, log, sentry.NewSentryService(cfg, log))
	require.NoError(t, err)

	var flakyCalls, permanentCalls atomic.Int32
	r.AddNoPublishHandler("flaky", "flaky_topic", ps, func(msg *message.Message) error {
		if flakyCalls.Add(1) < 2 {
			return ierr.NewError("temporary").Mark(ierr.ErrSystem)
		}
		return nil
	})
	r.AddNoPublishHandler("permanent", "permanent_topic", ps, func(msg *message.Message) error {
		permanentCalls.Add(1)
		return ierr.NewError("bad payload").Mark(ierr.ErrValidation)
	})
	r.AddNoPublishHandler("broken", "broken_topic", ps, func(msg *message.Message) error {
		return ierr.NewError("always down").Mark(ierr.ErrSystem)
	})

	poisoned, err := ps.Subscribe(context.Background(), cfg.Notification.PoisonTopic)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()
	<-r.Running()

	require.NoError(t, ps.Publish(ctx, "flaky_topic", message.NewMessage(watermill.NewUUID(), []byte("{}"))))
	require.NoError(t, ps.Publish(ctx, "permanent_topic", message.NewMessage(watermill.NewUUID(), []byte("{}"))))
	brokenMsg := message.NewMessage(watermill.NewUUID(), []byte("{}"))
	require.NoError(t, ps.Publish(ctx, "broken_topic", brokenMsg))

	select {
	case msg := <-poisoned:
		assert.Equal(t, brokenMsg.UUID, msg.UUID)
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("broken message never reached the poison topic")
	}

	assert.Eventually(t, func() bool { return flakyCalls.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return permanentCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, r.Close())
}
