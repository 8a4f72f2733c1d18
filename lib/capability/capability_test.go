// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"bytes"
	"errors"
	"net"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// socketPair returns both ends of a seqpacket socketpair. The test owns
// both fds until it hands one to something else.
func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	return fds[0], fds[1]
}

// fakeConn records writes and returns a scripted error.
type fakeConn struct {
	mu       sync.Mutex
	writes   [][]byte
	oobs     [][]byte
	writeErr error
	closes   int
}

func (f *fakeConn) WriteMsgUnix(b, oob []byte, addr *net.UnixAddr) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, 0, f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), b...))
	f.oobs = append(f.oobs, append([]byte(nil), oob...))
	return len(b), len(oob), nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func TestHandleCloseIsIdempotent(t *testing.T) {
	local, remote := socketPair(t)
	defer unix.Close(remote)

	handle := NewHandle(local)
	if !handle.Valid() {
		t.Fatal("new handle is not valid")
	}
	if err := handle.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := handle.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if handle.Valid() {
		t.Fatal("closed handle still valid")
	}
	if handle.FD() != -1 {
		t.Fatalf("FD after close = %d, want -1", handle.FD())
	}
}

func TestHandleReleaseMovesOwnership(t *testing.T) {
	local, remote := socketPair(t)
	defer unix.Close(remote)

	handle := NewHandle(local)
	fd := handle.Release()
	if fd != local {
		t.Fatalf("Release = %d, want %d", fd, local)
	}
	if handle.Release() != -1 {
		t.Fatal("second Release returned an fd")
	}
	// Close on the emptied handle must not close the moved fd.
	if err := handle.Close(); err != nil {
		t.Fatalf("Close after Release: %v", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
		t.Fatalf("moved fd was closed: %v", err)
	}
	unix.Close(fd)
}

func TestParseRights(t *testing.T) {
	first, second := socketPair(t)
	defer unix.Close(first)
	defer unix.Close(second)

	// Loop a message with two fds through a real socket so the
	// receiver gets fresh descriptors.
	sender, receiver := socketPair(t)
	defer unix.Close(sender)
	defer unix.Close(receiver)

	if err := unix.Sendmsg(sender, []byte("x"), unix.UnixRights(first, second), nil, 0); err != nil {
		t.Fatalf("sendmsg: %v", err)
	}
	buffer := make([]byte, 16)
	oob := make([]byte, unix.CmsgSpace(4*4))
	_, oobn, _, _, err := unix.Recvmsg(receiver, buffer, oob, 0)
	if err != nil {
		t.Fatalf("recvmsg: %v", err)
	}

	fds, messages, err := ParseRights(oob[:oobn])
	if err != nil {
		t.Fatalf("ParseRights: %v", err)
	}
	defer CloseAll(fds)
	if messages != 1 {
		t.Fatalf("messages = %d, want 1", messages)
	}
	if len(fds) != 2 {
		t.Fatalf("fds = %d, want 2", len(fds))
	}
	for _, fd := range fds {
		if !IsSeqpacketSocket(fd) {
			t.Errorf("received fd %d is not a seqpacket socket", fd)
		}
	}
}

func TestParseRightsMalformedControlDataKeepsFDs(t *testing.T) {
	var pipe [2]int
	if err := unix.Pipe2(pipe[:], unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	defer unix.Close(pipe[1])

	// A well-formed SCM_RIGHTS message followed by a header whose
	// length runs past the end of the buffer.
	oob := make([]byte, 0, unix.CmsgSpace(4)+unix.SizeofCmsghdr)
	oob = append(oob, unix.UnixRights(pipe[0])...)
	oob = append(oob, bytes.Repeat([]byte{0xff}, unix.SizeofCmsghdr)...)

	fds, messages, err := ParseRights(oob)
	if err == nil {
		t.Fatal("ParseRights accepted a malformed control buffer")
	}
	if len(fds) != 1 || fds[0] != pipe[0] {
		t.Fatalf("fds = %v, want [%d] so the caller can close it", fds, pipe[0])
	}
	if messages != 1 {
		t.Errorf("messages = %d, want 1", messages)
	}

	CloseAll(fds)
	if _, err := unix.FcntlInt(uintptr(pipe[0]), unix.F_GETFD, 0); !errors.Is(err, unix.EBADF) {
		t.Errorf("fd %d still open after CloseAll: %v", pipe[0], err)
	}
}

func TestParseRightsEmpty(t *testing.T) {
	fds, messages, err := ParseRights(nil)
	if err != nil || messages != 0 || len(fds) != 0 {
		t.Fatalf("ParseRights(nil) = %v, %d, %v", fds, messages, err)
	}
}

func TestIsSeqpacketSocketRejectsOtherFDs(t *testing.T) {
	pipe := make([]int, 2)
	if err := unix.Pipe2(pipe, unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer unix.Close(pipe[0])
	defer unix.Close(pipe[1])
	if IsSeqpacketSocket(pipe[0]) {
		t.Fatal("pipe reported as seqpacket socket")
	}

	datagram, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	defer unix.Close(datagram)
	if IsSeqpacketSocket(datagram) {
		t.Fatal("datagram socket reported as seqpacket socket")
	}
}

func TestChannelSendDeliversMessageAndFD(t *testing.T) {
	local, remote := socketPair(t)
	defer unix.Close(remote)

	channel, err := Open(NewHandle(local), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer channel.Close()

	payloadFD, other := socketPair(t)
	defer unix.Close(payloadFD)
	defer unix.Close(other)

	if err := channel.Send([]byte("hello"), payloadFD); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buffer := make([]byte, 16)
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, _, err := unix.Recvmsg(remote, buffer, oob, 0)
	if err != nil {
		t.Fatalf("recvmsg: %v", err)
	}
	if string(buffer[:n]) != "hello" {
		t.Fatalf("payload = %q, want %q", buffer[:n], "hello")
	}
	fds, _, err := ParseRights(oob[:oobn])
	if err != nil {
		t.Fatalf("ParseRights: %v", err)
	}
	defer CloseAll(fds)
	if len(fds) != 1 {
		t.Fatalf("received %d fds, want 1", len(fds))
	}
}

func TestChannelPeerGoneClosesChannel(t *testing.T) {
	local, remote := socketPair(t)
	channel, err := Open(NewHandle(local), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	unix.Close(remote)

	err = channel.Send([]byte("hello"), -1)
	if !errors.Is(err, ErrPeerGone) {
		t.Fatalf("Send after peer close: %v, want ErrPeerGone", err)
	}
	if !channel.Closed() {
		t.Fatal("channel still open after peer failure")
	}
	if err := channel.Send([]byte("again"), -1); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send on closed channel: %v, want ErrClosed", err)
	}
	if err := channel.Close(); err != nil {
		t.Fatalf("Close after failure: %v", err)
	}
}

func TestChannelTimeoutKeepsChannelOpen(t *testing.T) {
	local, remote := socketPair(t)
	defer unix.Close(remote)

	channel, err := Open(NewHandle(local), 5*time.Millisecond)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer channel.Close()

	// Nobody reads remote, so the socket buffer eventually fills.
	message := make([]byte, 16)
	var sendErr error
	for i := 0; i < 1<<16; i++ {
		if sendErr = channel.Send(message, -1); sendErr != nil {
			break
		}
	}
	if !errors.Is(sendErr, ErrSendTimedOut) {
		t.Fatalf("Send on full socket: %v, want ErrSendTimedOut", sendErr)
	}
	if channel.Closed() {
		t.Fatal("timeout closed the channel")
	}
}

func TestChannelClosesConnExactlyOnce(t *testing.T) {
	conn := &fakeConn{writeErr: &net.OpError{Op: "write", Net: "unixpacket", Err: os.NewSyscallError("sendmsg", syscall.EPIPE)}}
	channel := NewChannel(conn, time.Millisecond)

	if err := channel.Send([]byte("x"), -1); !errors.Is(err, ErrPeerGone) {
		t.Fatalf("Send: %v, want ErrPeerGone", err)
	}
	for i := 0; i < 3; i++ {
		if err := channel.Send([]byte("x"), -1); !errors.Is(err, ErrClosed) {
			t.Fatalf("Send %d after failure: %v, want ErrClosed", i, err)
		}
		if err := channel.Close(); err != nil {
			t.Fatalf("Close %d: %v", i, err)
		}
	}
	if conn.closes != 1 {
		t.Fatalf("conn closed %d times, want 1", conn.closes)
	}
}

func TestChannelOtherFailureIsNotPeerGone(t *testing.T) {
	conn := &fakeConn{writeErr: &net.OpError{Op: "write", Net: "unixpacket", Err: os.NewSyscallError("sendmsg", syscall.ENOBUFS)}}
	channel := NewChannel(conn, time.Millisecond)

	err := channel.Send([]byte("x"), -1)
	if err == nil || errors.Is(err, ErrPeerGone) || errors.Is(err, ErrSendTimedOut) {
		t.Fatalf("Send: %v, want unclassified failure", err)
	}
	if !channel.Closed() {
		t.Fatal("unclassified failure left the channel open")
	}
}

func TestOpenConsumesHandle(t *testing.T) {
	local, remote := socketPair(t)
	defer unix.Close(remote)

	handle := NewHandle(local)
	channel, err := Open(handle, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer channel.Close()
	if handle.Valid() {
		t.Fatal("handle still owns an fd after Open")
	}
	if _, err := Open(handle, 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("Open on empty handle: %v, want ErrClosed", err)
	}
}
