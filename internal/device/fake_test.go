package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_ConnectAndScan(t *testing.T) {
	f := NewFake(true)
	assert.ErrorIs(t, f.StartScan(), ErrNotConnected)

	assert.True(t, f.Connect(context.Background()))
	assert.NoError(t, f.StartScan())

	f.SetScanError(errors.New("motor stalled"))
	assert.EqualError(t, f.StartScan(), "motor stalled")

	f.Disconnect()
	f.Disconnect()
	assert.False(t, f.Connected())
	assert.Equal(t, 1, f.Connects())
	assert.Equal(t, 2, f.Disconnects())
	assert.Equal(t, 3, f.Scans())
}

func TestFake_ConnectDelayRespectsContext(t *testing.T) {
	f := NewFake(true)
	f.SetConnectDelay(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.False(t, f.Connect(ctx))
	assert.False(t, f.Connected())
}

func TestFake_Emit(t *testing.T) {
	f := NewFake(true)
	f.Emit(Reading{Kind: TagReader, TagID: "dropped"})

	var got []Reading
	f.SetCallback(func(r Reading) { got = append(got, r) })
	f.Emit(Reading{Kind: TagReader, TagID: "E200"})

	assert.Equal(t, []Reading{{Kind: TagReader, TagID: "E200"}}, got)
}
