package eventbus

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_EmptyURLIsInProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := New(ctx, "", []string{"trophy.>"}, discardLogger())
	require.NoError(t, err)
	defer bus.Close()

	msgs, err := bus.Subscribe(ctx, "trophy.test.v1")
	require.NoError(t, err)

	require.NoError(t, bus.Publish("trophy.test.v1", message.NewMessage("m1", []byte(`{"ok":true}`))))

	select {
	case msg := <-msgs:
		assert.Equal(t, "m1", msg.UUID)
		assert.JSONEq(t, `{"ok":true}`, string(msg.Payload))
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestNKeyOption(t *testing.T) {
	kp, err := nkeys.CreateUser()
	require.NoError(t, err)
	seed, err := kp.Seed()
	require.NoError(t, err)

	opt, err := NKeyOption(string(seed))
	require.NoError(t, err)
	assert.NotNil(t, opt)

	_, err = NKeyOption("not-a-seed")
	assert.ErrorContains(t, err, "invalid nkey seed")
}
