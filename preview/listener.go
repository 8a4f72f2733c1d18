// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/frameport/lib/capability"
	"github.com/bureau-foundation/frameport/lib/clock"
	"github.com/bureau-foundation/frameport/lib/netutil"
	"github.com/bureau-foundation/frameport/lib/wire"
)

// maxReceivedFDs sizes the control buffer. It is larger than the one
// fd a valid request carries so that surplus fds arrive intact and can
// be closed rather than silently truncated.
const maxReceivedFDs = 8

// Reasons a request is rejected before it reaches wire.DecodeRequest.
var (
	errTruncated        = errors.New("datagram truncated")
	errControlTruncated = errors.New("control data truncated")
	errControlCount     = errors.New("expected exactly one control message")
	errNotSeqpacket     = errors.New("capability is not a seqpacket Unix socket")
)

// SocketAddress returns the socket address for a service name: the
// name itself when it begins with "/", otherwise "@" followed by the
// name, which selects the abstract namespace.
func SocketAddress(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "@" + name
}

// listenEndpoint creates the datagram socket and binds it to name.
func listenEndpoint(name string) (*net.UnixConn, error) {
	if name == "" {
		return nil, &StartError{Kind: ErrRegistrationFailed, Name: name, Err: errors.New("empty service name")}
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, &StartError{Kind: ErrListenSetupFailed, Name: name, Err: fmt.Errorf("socket: %w", err)}
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: SocketAddress(name)}); err != nil {
		unix.Close(fd)
		return nil, &StartError{Kind: ErrRegistrationFailed, Name: name, Err: fmt.Errorf("binding %s: %w", SocketAddress(name), err)}
	}

	file := os.NewFile(uintptr(fd), SocketAddress(name))
	// FilePacketConn duplicates the descriptor.
	conn, err := net.FilePacketConn(file)
	file.Close()
	if err != nil {
		removeSocketFile(name)
		return nil, &StartError{Kind: ErrListenSetupFailed, Name: name, Err: err}
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		removeSocketFile(name)
		return nil, &StartError{Kind: ErrListenSetupFailed, Name: name, Err: fmt.Errorf("endpoint is %T, not a Unix socket", conn)}
	}
	return unixConn, nil
}

// removeSocketFile unlinks the socket file of a filesystem-bound
// service. Abstract names need no cleanup.
func removeSocketFile(name string) {
	if strings.HasPrefix(name, "/") {
		_ = os.Remove(name)
	}
}

// endpoint is the receive side the listener reads from. *net.UnixConn
// satisfies it.
type endpoint interface {
	ReadMsgUnix(b, oob []byte) (n, oobn, flags int, addr *net.UnixAddr, err error)
	Close() error
}

// listener runs the accept loop for one service.
type listener struct {
	endpoint endpoint
	inbox    *inbox
	policy   ReceiveErrorPolicy
	backoff  time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	// stopping is closed by Service.Close before it closes the
	// endpoint, so the resulting receive error is not logged as a
	// failure.
	stopping <-chan struct{}

	// done is closed when the accept loop returns.
	done chan struct{}
}

// run is the accept loop. It returns when the endpoint is closed or a
// receive fails fatally; in both cases the endpoint is closed on
// return.
func (l *listener) run() {
	defer close(l.done)
	defer l.endpoint.Close()

	message := make([]byte, wire.RequestSize)
	oob := make([]byte, unix.CmsgSpace(maxReceivedFDs*4))

	for {
		n, oobn, flags, _, err := l.endpoint.ReadMsgUnix(message, oob)
		if err != nil {
			if l.stopped() || netutil.IsClosed(err) {
				l.logger.Info("listener stopped")
				return
			}
			if l.policy == RetryTransient && isTransientReceiveError(err) {
				l.inbox.retried()
				l.logger.Warn("transient receive error, retrying",
					"error", err,
					"backoff", l.backoff,
				)
				select {
				case <-l.clock.After(l.backoff):
				case <-l.stopping:
					l.logger.Info("listener stopped")
					return
				}
				continue
			}
			l.logger.Error("receive failed, listener stopping permanently", "error", err)
			return
		}
		l.accept(message[:n], oob[:oobn], flags)
	}
}

func (l *listener) stopped() bool {
	select {
	case <-l.stopping:
		return true
	default:
		return false
	}
}

// accept validates one received datagram and either queues it or
// destroys every fd that came with it.
func (l *listener) accept(message, oob []byte, flags int) {
	fds, controlMessages, parseErr := capability.ParseRights(oob)

	// Count before closing: the client observes the close as EOF and
	// may read Stats straight away.
	reject := func(reason error) {
		l.inbox.reject()
		capability.CloseAll(fds)
		l.logger.Debug("rejected connection request",
			"error", reason,
			"bytes", len(message),
			"fds", len(fds),
		)
	}

	if flags&unix.MSG_TRUNC != 0 {
		reject(errTruncated)
		return
	}
	if flags&unix.MSG_CTRUNC != 0 {
		reject(errControlTruncated)
		return
	}
	if parseErr != nil {
		reject(parseErr)
		return
	}
	if controlMessages != 1 {
		reject(fmt.Errorf("%w, got %d", errControlCount, controlMessages))
		return
	}
	channelID, err := wire.DecodeRequest(message, len(fds))
	if err != nil {
		reject(err)
		return
	}
	if !capability.IsSeqpacketSocket(fds[0]) {
		reject(errNotSeqpacket)
		return
	}

	request := ConnectionRequest{ChannelID: channelID, Client: capability.NewHandle(fds[0])}
	if !l.inbox.deliver(request) {
		request.Close()
		l.logger.Warn("pending queue full, dropping connection request", "channel_id", channelID)
		return
	}
	l.logger.Debug("queued connection request", "channel_id", channelID)
}

// isTransientReceiveError reports whether a receive error may clear on
// its own.
func isTransientReceiveError(err error) bool {
	return errors.Is(err, unix.EINTR) ||
		errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.ENOBUFS) ||
		errors.Is(err, unix.ENOMEM)
}
