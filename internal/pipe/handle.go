package pipe

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/CZERTAINLY/Brewer/internal/notify"
)

// End tells which end of a pipe a Handle holds.
type End int

const (
	// Read is the end the parent reads from: a child's stdout or stderr.
	Read End = iota
	// Write is the end the parent writes to: a child's stdin.
	Write
)

func (e End) String() string {
	switch e {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return fmt.Sprintf("end(%d)", int(e))
	}
}

// Notifications posted by a reading Handle for its *os.File.
const (
	DataAvailable             notify.Kind = "FileHandleDataAvailable"
	ReadCompletion            notify.Kind = "FileHandleReadCompletion"
	ReadToEndOfFileCompletion notify.Kind = "FileHandleReadToEndOfFileCompletion"
)

// UserInfo keys.
const (
	DataItem   = "data"
	LengthItem = "length"
)

const chunkSize = 32 * 1024

var (
	ErrMixedRead = errors.New("synchronous and asynchronous reads are mutually exclusive")
	ErrWriteEnd  = errors.New("write end of a pipe can't be read")
	ErrReadEnd   = errors.New("read end of a pipe can't be written")
)

// ChunkFunc receives decoded text. Bytes are not converted: Go strings hold
// the platform default UTF-8 text as is.
type ChunkFunc func(text string)

// Handle wraps one end of an OS pipe. A reading Handle is either read
// synchronously with ReadAll, or asynchronously with any number of Read and
// ReadToEnd callbacks, which share one background reader.
type Handle struct {
	end    End
	f      *os.File
	center *notify.Center

	mx       sync.Mutex
	pumping  bool
	syncRead bool
	collect  bool
	eof      bool
	closed   bool
	buf      bytes.Buffer
	subs     []*notify.Subscription
	done     chan struct{}
}

// New wraps f. A nil center means notify.Default().
func New(f *os.File, end End, center *notify.Center) *Handle {
	if center == nil {
		center = notify.Default()
	}
	return &Handle{
		end:    end,
		f:      f,
		center: center,
		done:   make(chan struct{}),
	}
}

// Open creates an OS pipe. It returns a Handle for the parent side of given
// end and the opposite file, which is meant to be passed to a child process.
func Open(end End, center *notify.Center) (*Handle, *os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating pipe: %w", err)
	}
	switch end {
	case Read:
		return New(r, Read, center), w, nil
	case Write:
		return New(w, Write, center), r, nil
	default:
		_ = r.Close()
		_ = w.Close()
		return nil, nil, fmt.Errorf("unknown pipe end %s", end)
	}
}

func (h *Handle) End() End {
	return h.end
}

// Native returns the wrapped *os.File, notifications are posted for it.
func (h *Handle) Native() any {
	return h.f
}

func (h *Handle) Notifications() map[string]notify.Kind {
	return map[string]notify.Kind{
		"data_available": DataAvailable,
		"read_finished":  ReadCompletion,
		"end_of_file":    ReadToEndOfFileCompletion,
	}
}

// ReadAll blocks until EOF and returns everything read.
func (h *Handle) ReadAll() (string, error) {
	h.mx.Lock()
	switch {
	case h.end != Read:
		h.mx.Unlock()
		return "", ErrWriteEnd
	case h.pumping:
		h.mx.Unlock()
		return "", ErrMixedRead
	}
	h.syncRead = true
	h.mx.Unlock()

	b, err := io.ReadAll(h.f)
	return string(b), err
}

// Read calls fn for every chunk of data as it arrives, in the order it was
// written, until the other end is closed. Empty chunks are never delivered.
func (h *Handle) Read(fn ChunkFunc) error {
	h.mx.Lock()
	defer h.mx.Unlock()
	if err := h.asyncLocked(); err != nil {
		return err
	}
	if h.eof {
		return nil
	}
	sub := h.center.Subscribe(h, "read_finished", func(n notify.Notification) {
		data, _ := n.UserInfo[DataItem].([]byte)
		if len(data) > 0 {
			fn(string(data))
		}
	})
	h.subs = append(h.subs, sub)
	h.startLocked()
	return nil
}

// ReadToEnd calls fn exactly once with all data read from now until EOF. If
// EOF was already reached, fn is called immediately.
func (h *Handle) ReadToEnd(fn ChunkFunc) error {
	h.mx.Lock()
	if err := h.asyncLocked(); err != nil {
		h.mx.Unlock()
		return err
	}
	if h.eof {
		text := h.buf.String()
		h.mx.Unlock()
		fn(text)
		return nil
	}
	h.collect = true
	sub := h.center.SubscribeOnce(h, "end_of_file", func(n notify.Notification) {
		data, _ := n.UserInfo[DataItem].([]byte)
		fn(string(data))
	})
	h.subs = append(h.subs, sub)
	h.startLocked()
	h.mx.Unlock()
	return nil
}

// Done is closed when an asynchronous read reached EOF and all callbacks
// were called.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) asyncLocked() error {
	switch {
	case h.end != Read:
		return ErrWriteEnd
	case h.syncRead:
		return ErrMixedRead
	case h.closed:
		return os.ErrClosed
	}
	return nil
}

func (h *Handle) startLocked() {
	if h.pumping {
		return
	}
	h.pumping = true
	go h.pump()
}

func (h *Handle) pump() {
	defer close(h.done)
	buf := make([]byte, chunkSize)
	for {
		n, err := h.f.Read(buf)
		if n > 0 {
			data := bytes.Clone(buf[:n])
			h.mx.Lock()
			if h.collect {
				h.buf.Write(data)
			}
			h.mx.Unlock()
			h.center.Post(h.f, DataAvailable, map[string]any{LengthItem: n})
			h.center.Post(h.f, ReadCompletion, map[string]any{DataItem: data})
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				slog.Debug("pipe read failed", "fd", h.f.Name(), "error", err)
			}
			break
		}
	}

	h.mx.Lock()
	h.eof = true
	data := bytes.Clone(h.buf.Bytes())
	h.mx.Unlock()
	h.center.Post(h.f, ReadToEndOfFileCompletion, map[string]any{DataItem: data})
	h.cancelSubs()
}

// Write writes to a Write end.
func (h *Handle) Write(p []byte) (int, error) {
	if h.end != Write {
		return 0, ErrReadEnd
	}
	return h.f.Write(p)
}

func (h *Handle) WriteString(s string) (int, error) {
	return h.Write([]byte(s))
}

// Close closes the file and drops all pending callbacks.
func (h *Handle) Close() error {
	h.mx.Lock()
	h.closed = true
	h.mx.Unlock()
	h.cancelSubs()
	return h.f.Close()
}

func (h *Handle) cancelSubs() {
	h.mx.Lock()
	subs := h.subs
	h.subs = nil
	h.mx.Unlock()
	for _, sub := range subs {
		sub.Cancel()
	}
}

// Truncate truncates the underlying file at offset. Pipes do not support it
// and return the OS error.
func (h *Handle) Truncate(offset int64) error {
	return h.f.Truncate(offset)
}

// Fd returns the file descriptor. Note that os.File.Fd switches the file to
// blocking mode, so Close no longer interrupts a pending read.
func (h *Handle) Fd() uintptr {
	return h.f.Fd()
}
