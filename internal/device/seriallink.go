package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/salio-edge/gateway/internal/monitoring"
	"github.com/salio-edge/gateway/internal/serialmux"
)

// SerialLink owns the serial port behind a line-oriented device. Each Open
// creates a fresh serialmux over a newly opened port and feeds every line to
// a handler; Close tears both down. A link can be reopened after Close.
//
// SerialLink implements serialmux.Commander against whichever mux is current,
// so debug routes attached once keep working across reconnects.
type SerialLink struct {
	name string
	path string
	opts serialmux.PortOptions
	open serialmux.OpenFunc

	mu     sync.Mutex
	mux    *serialmux.SerialMux[serialmux.SerialPorter]
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSerialLink describes a link; nothing is opened until Open. A nil open
// uses serialmux.OpenRealPort.
func NewSerialLink(name, path string, opts serialmux.PortOptions, open serialmux.OpenFunc) *SerialLink {
	if open == nil {
		open = serialmux.OpenRealPort
	}
	return &SerialLink{name: name, path: path, opts: opts, open: open}
}

// Name is the short device name used in logs and debug routes.
func (l *SerialLink) Name() string { return l.name }

// Path is the device path the link opens.
func (l *SerialLink) Path() string { return l.path }

// Open opens the port and starts delivering lines to handle. Opening an
// already open link is a no-op.
func (l *SerialLink) Open(ctx context.Context, handle func(line string)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mux != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	opts, err := l.opts.Normalize()
	if err != nil {
		return fmt.Errorf("%s options: %w", l.name, err)
	}
	port, err := l.open(l.path, opts)
	if err != nil {
		return fmt.Errorf("open %s on %s: %w", l.name, l.path, err)
	}

	mux := serialmux.NewSerialMux(port)
	_, lines := mux.Subscribe()

	monitorCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		err := mux.Monitor(monitorCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("%s monitor on %s stopped: %v", l.name, l.path, err)
		}
	}()
	go func() {
		defer close(done)
		for line := range lines {
			handle(line)
		}
	}()

	l.mux = mux
	l.cancel = cancel
	l.done = done
	return nil
}

// Close stops the monitor, closes the port and waits for the line handler to
// return. It is safe to call on a closed link.
func (l *SerialLink) Close() error {
	l.mu.Lock()
	mux, cancel, done := l.mux, l.cancel, l.done
	l.mux, l.cancel, l.done = nil, nil, nil
	l.mu.Unlock()

	if mux == nil {
		return nil
	}
	cancel()
	err := mux.Close()
	<-done
	return err
}

// Connected reports whether the link currently holds an open port.
func (l *SerialLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mux != nil
}

func (l *SerialLink) current() *serialmux.SerialMux[serialmux.SerialPorter] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mux
}

// SendCommand writes a newline-terminated command to the open port.
func (l *SerialLink) SendCommand(command string) error {
	mux := l.current()
	if mux == nil {
		return ErrNotConnected
	}
	return mux.SendCommand(command)
}

// Subscribe taps the raw line stream of the current port. While the link is
// closed it returns an already closed channel.
func (l *SerialLink) Subscribe() (string, chan string) {
	mux := l.current()
	if mux == nil {
		ch := make(chan string)
		close(ch)
		return "", ch
	}
	return mux.Subscribe()
}

func (l *SerialLink) Unsubscribe(id string) {
	if mux := l.current(); mux != nil {
		mux.Unsubscribe(id)
	}
}

var _ serialmux.Commander = (*SerialLink)(nil)
