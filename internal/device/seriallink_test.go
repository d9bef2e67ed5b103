package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salio-edge/gateway/internal/serialmux"
)

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) handle(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *lineRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func blockingPort() *serialmux.TestableSerialPort {
	port := serialmux.NewTestableSerialPort()
	port.BlockReads = true
	return port
}

func TestSerialLink_DeliversLines(t *testing.T) {
	port := blockingPort()
	link := NewSerialLink("rfid", "/dev/null", serialmux.PortOptions{}, port.Opener(nil))

	var rec lineRecorder
	require.NoError(t, link.Open(context.Background(), rec.handle))
	assert.True(t, link.Connected())

	port.AddReadData([]byte("first\r\nsecond\n"))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, rec.snapshot())

	require.NoError(t, link.Close())
	assert.False(t, link.Connected())
	assert.True(t, port.IsClosed())
}

func TestSerialLink_OpenError(t *testing.T) {
	wantErr := errors.New("no such device")
	port := serialmux.NewTestableSerialPort()
	link := NewSerialLink("lidar", "/dev/missing", serialmux.PortOptions{}, port.Opener(wantErr))

	err := link.Open(context.Background(), func(string) {})
	assert.ErrorIs(t, err, wantErr)
	assert.False(t, link.Connected())
}

func TestSerialLink_InvalidOptions(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	link := NewSerialLink("lidar", "/dev/ttyUSB0", serialmux.PortOptions{Parity: "X"}, port.Opener(nil))

	assert.Error(t, link.Open(context.Background(), func(string) {}))
	assert.False(t, link.Connected())
}

func TestSerialLink_OpenHonoursContext(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	link := NewSerialLink("lidar", "/dev/ttyUSB0", serialmux.PortOptions{}, port.Opener(nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, link.Open(ctx, func(string) {}), context.Canceled)
}

func TestSerialLink_SendCommand(t *testing.T) {
	port := blockingPort()
	link := NewSerialLink("lidar", "/dev/ttyUSB0", serialmux.PortOptions{}, port.Opener(nil))

	assert.ErrorIs(t, link.SendCommand("SCAN"), ErrNotConnected)

	require.NoError(t, link.Open(context.Background(), func(string) {}))
	defer link.Close()

	require.NoError(t, link.SendCommand("SCAN"))
	assert.Equal(t, "SCAN\n", string(port.GetWrittenData()))
}

func TestSerialLink_CloseIsIdempotent(t *testing.T) {
	link := NewSerialLink("rfid", "/dev/null", serialmux.PortOptions{}, blockingPort().Opener(nil))
	assert.NoError(t, link.Close())

	require.NoError(t, link.Open(context.Background(), func(string) {}))
	assert.NoError(t, link.Close())
	assert.NoError(t, link.Close())
}

func TestSerialLink_Reopen(t *testing.T) {
	var ports []*serialmux.TestableSerialPort
	open := func(string, serialmux.PortOptions) (serialmux.SerialPorter, error) {
		p := blockingPort()
		ports = append(ports, p)
		return p, nil
	}
	link := NewSerialLink("rfid", "/dev/null", serialmux.PortOptions{}, open)

	var rec lineRecorder
	require.NoError(t, link.Open(context.Background(), rec.handle))
	require.NoError(t, link.Close())
	require.NoError(t, link.Open(context.Background(), rec.handle))
	defer link.Close()

	require.Len(t, ports, 2)
	ports[1].AddReadData([]byte("again\n"))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"again"}, rec.snapshot())
}

func TestSerialLink_SubscribeWhileClosed(t *testing.T) {
	link := NewSerialLink("rfid", "/dev/null", serialmux.PortOptions{}, nil)
	_, ch := link.Subscribe()
	_, open := <-ch
	assert.False(t, open)
	assert.NotPanics(t, func() { link.Unsubscribe("whatever") })
}
