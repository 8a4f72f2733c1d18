// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/frameport/lib/capability"
	"github.com/bureau-foundation/frameport/lib/shm"
	"github.com/bureau-foundation/frameport/lib/testutil"
	"github.com/bureau-foundation/frameport/lib/wire"
)

const testTimeout = 5 * time.Second

// channelHandler forwards sessions to channels.
type channelHandler struct {
	opened chan *Session
	closed chan *Session
}

func newChannelHandler() *channelHandler {
	return &channelHandler{
		opened: make(chan *Session, 16),
		closed: make(chan *Session, 16),
	}
}

func (h *channelHandler) SessionOpened(session *Session) { h.opened <- session }
func (h *channelHandler) SessionClosed(session *Session) { h.closed <- session }

func startTestService(t *testing.T, registry *Registry, options Options) *Service {
	t.Helper()
	service, err := registry.Start(testutil.UniqueID("svc.test"), options)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { service.Close() })
	return service
}

// runService runs the consumer loop until the test ends.
func runService(t *testing.T, service *Service, handler Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := service.Run(ctx, handler); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		testutil.RequireClosed(t, done, testTimeout, "Run did not return")
	})
}

func dialTest(t *testing.T, name, channelID string) *Client {
	t.Helper()
	client, err := Dial(name, channelID)
	if err != nil {
		t.Fatalf("Dial(%q): %v", channelID, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func receiveEvent(t *testing.T, client *Client) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	event, err := client.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	return event
}

// requireNoEvent asserts that nothing arrives within a short window.
func requireNoEvent(t *testing.T, client *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	event, err := client.Receive(ctx)
	if err == nil {
		if event.Surface != nil {
			event.Surface.Close()
		}
		t.Fatalf("unexpected %v event", event.Kind)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Receive: %v, want deadline exceeded", err)
	}
}

func requireEOF(t *testing.T, client *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if _, err := client.Receive(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("Receive = %v, want io.EOF", err)
	}
}

func TestStartTwiceFailsAlreadyRunning(t *testing.T) {
	registry := NewRegistry()
	service := startTestService(t, registry, Options{})

	_, err := registry.Start(service.Name(), Options{})
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start = %v, want ErrAlreadyRunning", err)
	}
	var startErr *StartError
	if !errors.As(err, &startErr) || startErr.Name != service.Name() {
		t.Errorf("error = %#v, want *StartError naming %q", err, service.Name())
	}

	// The first instance keeps serving.
	handler := newChannelHandler()
	runService(t, service, handler)
	dialTest(t, service.Name(), "mixer-1")
	session := testutil.RequireReceive(t, handler.opened, testTimeout, "session on first instance")
	if session.ChannelID() != "mixer-1" {
		t.Errorf("ChannelID = %q", session.ChannelID())
	}
	session.Close()
}

func TestStartNameHeldByAnotherRegistry(t *testing.T) {
	service := startTestService(t, NewRegistry(), Options{})
	_, err := NewRegistry().Start(service.Name(), Options{})
	if !errors.Is(err, ErrRegistrationFailed) {
		t.Fatalf("Start = %v, want ErrRegistrationFailed", err)
	}
	if !errors.Is(err, unix.EADDRINUSE) {
		t.Errorf("Start = %v, want EADDRINUSE in chain", err)
	}
}

func TestStartEmptyName(t *testing.T) {
	if _, err := NewRegistry().Start("", Options{}); !errors.Is(err, ErrRegistrationFailed) {
		t.Fatalf("Start(\"\") = %v, want ErrRegistrationFailed", err)
	}
}

func TestCloseReleasesName(t *testing.T) {
	registry := NewRegistry()
	service, err := registry.Start(testutil.UniqueID("svc.test"), Options{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := service.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	testutil.RequireClosed(t, service.Dead(), testTimeout, "listener after Close")
	if _, ok := registry.Lookup(service.Name()); ok {
		t.Error("name still registered after Close")
	}

	restarted, err := registry.Start(service.Name(), Options{})
	if err != nil {
		t.Fatalf("restart after Close: %v", err)
	}
	restarted.Close()
}

func TestMixerScenario(t *testing.T) {
	registry := NewRegistry()
	service := startTestService(t, registry, Options{})
	handler := newChannelHandler()
	runService(t, service, handler)

	source := NewSource("mixer-1")
	defer source.Close()
	first, err := shm.Create("h1", 64)
	if err != nil {
		t.Fatalf("creating h1: %v", err)
	}
	copy(first.Bytes(), "frame one")
	source.Publish(first)

	client := dialTest(t, service.Name(), "mixer-1")
	session := testutil.RequireReceive(t, handler.opened, testTimeout, "waiting for session")
	if session.ChannelID() != "mixer-1" {
		t.Fatalf("ChannelID = %q, want mixer-1", session.ChannelID())
	}

	session.Attach(source)
	event := receiveEvent(t, client)
	if event.Kind != EventSetSurface || event.Surface == nil {
		t.Fatalf("event = %+v, want SetSurface with a surface", event)
	}
	defer event.Surface.Close()
	if !bytes.HasPrefix(event.Surface.Bytes(), []byte("frame one")) {
		t.Errorf("received surface does not share the mixer's pages")
	}
	if event.Surface.Writable() {
		t.Error("received surface is writable")
	}

	second, err := shm.Create("h2", 64)
	if err != nil {
		t.Fatalf("creating h2: %v", err)
	}
	source.Publish(second)
	for range 3 {
		source.FrameRendered()
	}
	for i := range 3 {
		if event := receiveEvent(t, client); event.Kind != EventFrameUpdated {
			t.Fatalf("event %d = %v, want frame-updated", i, event.Kind)
		}
	}
	requireNoEvent(t, client)

	session.Detach()
	event = receiveEvent(t, client)
	if event.Kind != EventSetSurface || event.Surface != nil {
		t.Fatalf("detach event = %+v, want SetSurface without surface", event)
	}
	source.FrameRendered()
	requireNoEvent(t, client)
	session.Close()
}

func TestChannelIDDelivered(t *testing.T) {
	registry := NewRegistry()
	service := startTestService(t, registry, Options{QueueCapacity: 16})
	handler := newChannelHandler()
	runService(t, service, handler)

	for _, channelID := range []string{"", "m", "mixer-1", strings.Repeat("x", wire.MaxChannelIDLength)} {
		dialTest(t, service.Name(), channelID)
		session := testutil.RequireReceive(t, handler.opened, testTimeout, "session for %d-byte id", len(channelID))
		if session.ChannelID() != channelID {
			t.Errorf("ChannelID = %q, want %q", session.ChannelID(), channelID)
		}
		session.Close()
	}
}

func TestQueueOverflowDropsLateRequests(t *testing.T) {
	registry := NewRegistry()
	service := startTestService(t, registry, Options{QueueCapacity: 4})

	// No consumer yet: the listener fills the queue.
	var clients []*Client
	for i := range 6 {
		clients = append(clients, dialTest(t, service.Name(), fmt.Sprintf("c%d", i)))
	}
	// Dropped requests have their socket closed by the listener.
	requireEOF(t, clients[4])
	requireEOF(t, clients[5])

	stats := service.Stats()
	if stats.Accepted != 4 || stats.Dropped != 2 || stats.Pending != 4 {
		t.Errorf("stats = %+v, want 4 accepted, 2 dropped, 4 pending", stats)
	}

	handler := newChannelHandler()
	runService(t, service, handler)
	for i := range 4 {
		session := testutil.RequireReceive(t, handler.opened, testTimeout, "session %d", i)
		if want := fmt.Sprintf("c%d", i); session.ChannelID() != want {
			t.Errorf("session %d ChannelID = %q, want %q", i, session.ChannelID(), want)
		}
		session.Close()
	}
	testutil.RequireNoReceive(t, handler.opened, 50*time.Millisecond, "more than capacity delivered")
}

func TestPeerGoneDeliversOneDisconnect(t *testing.T) {
	registry := NewRegistry()
	service := startTestService(t, registry, Options{})
	handler := newChannelHandler()
	runService(t, service, handler)

	source := NewSource("mixer-1")
	defer source.Close()
	client := dialTest(t, service.Name(), "mixer-1")
	session := testutil.RequireReceive(t, handler.opened, testTimeout, "waiting for session")
	session.Attach(source)
	receiveEvent(t, client)

	client.Close()
	for range 5 {
		source.FrameRendered()
	}

	closed := testutil.RequireReceive(t, handler.closed, testTimeout, "waiting for disconnect")
	if closed != session {
		t.Fatal("disconnect delivered for a different session")
	}
	testutil.RequireNoReceive(t, handler.closed, 50*time.Millisecond, "second disconnect")
	if err := session.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	stats := service.Stats()
	if stats.Disconnected != 1 || stats.Sessions != 0 {
		t.Errorf("stats = %+v, want 1 disconnected, 0 sessions", stats)
	}
}

// sendRaw sends message to the service with the given fds attached.
func sendRaw(t *testing.T, name string, message []byte, fds ...int) {
	t.Helper()
	sock, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	defer unix.Close(sock)
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}
	if err := unix.Sendmsg(sock, message, oob, &unix.SockaddrUnix{Name: SocketAddress(name)}, 0); err != nil {
		t.Fatalf("sendmsg: %v", err)
	}
}

// seqpacketPair returns a client conn and the raw fd of its peer.
func seqpacketPair(t *testing.T) (*Client, int) {
	t.Helper()
	pair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	conn, err := unixConnFromFD(pair[0], "test-client")
	if err != nil {
		t.Fatalf("wrapping: %v", err)
	}
	client := &Client{conn: conn}
	t.Cleanup(func() { client.Close() })
	return client, pair[1]
}

func TestMalformedRequestsRejected(t *testing.T) {
	registry := NewRegistry()
	service := startTestService(t, registry, Options{})
	handler := newChannelHandler()
	runService(t, service, handler)

	valid, err := wire.EncodeRequest("mixer-1")
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	unterminated := bytes.Clone(valid)
	for i := wire.HeaderSize; i < wire.RequestSize; i++ {
		unterminated[i] = 'a'
	}
	wrongID := bytes.Clone(valid)
	wrongID[8] ^= 0xff
	oversized := append(bytes.Clone(valid), 0)
	oversized[4] = byte(len(oversized))

	tests := []struct {
		name    string
		message []byte
		fdCount int
	}{
		{"unterminated id", unterminated, 1},
		{"wrong message id", wrongID, 1},
		{"oversized", oversized, 1},
		{"truncated", valid[:wire.RequestSize-1], 1},
		{"two fds", valid, 2},
	}
	for i, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var fds []int
			var clients []*Client
			for range test.fdCount {
				client, fd := seqpacketPair(t)
				clients = append(clients, client)
				fds = append(fds, fd)
			}
			sendRaw(t, service.Name(), test.message, fds...)
			capability.CloseAll(fds)

			for _, client := range clients {
				requireEOF(t, client)
			}
			if rejected := service.Stats().Rejected; rejected != uint64(i+1) {
				t.Errorf("Rejected = %d, want %d", rejected, i+1)
			}
		})
	}

	// A request without any fd is rejected too.
	sendRaw(t, service.Name(), valid)
	// A valid request after all the bad ones still gets through.
	dialTest(t, service.Name(), "mixer-1")
	session := testutil.RequireReceive(t, handler.opened, testTimeout, "valid request after rejects")
	session.Close()
	testutil.RequireNoReceive(t, handler.opened, 50*time.Millisecond, "rejected request delivered")

	if stats := service.Stats(); stats.Rejected != uint64(len(tests)+1) || stats.Accepted != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRequestWithNonSocketCapabilityRejected(t *testing.T) {
	registry := NewRegistry()
	service := startTestService(t, registry, Options{})

	surface, err := shm.Create("not-a-socket", 64)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer surface.Close()
	valid, _ := wire.EncodeRequest("mixer-1")
	sendRaw(t, service.Name(), valid, surface.FD())

	// A valid request afterwards proves the bad one was processed.
	client := dialTest(t, service.Name(), "mixer-1")
	handler := newChannelHandler()
	runService(t, service, handler)
	session := testutil.RequireReceive(t, handler.opened, testTimeout, "valid request")
	session.Attach(NewSource("mixer-1"))
	receiveEvent(t, client)
	session.Close()

	if stats := service.Stats(); stats.Rejected != 1 || stats.Opened != 1 {
		t.Errorf("stats = %+v, want 1 rejected, 1 opened", stats)
	}
}

func TestRunRejectsSecondConsumer(t *testing.T) {
	service := startTestService(t, NewRegistry(), Options{})
	handler := newChannelHandler()
	runService(t, service, handler)

	// Make sure the first Run is active before racing a second.
	dialTest(t, service.Name(), "a")
	testutil.RequireReceive(t, handler.opened, testTimeout, "first consumer").Close()

	if err := service.Run(context.Background(), handler); !errors.Is(err, ErrConsumerActive) {
		t.Fatalf("second Run = %v, want ErrConsumerActive", err)
	}
}

func TestRunReturnsOnClose(t *testing.T) {
	service, err := NewRegistry().Start(testutil.UniqueID("svc.test"), Options{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- service.Run(context.Background(), newChannelHandler()) }()

	service.Close()
	if err := testutil.RequireReceive(t, done, testTimeout, "Run after Close"); err != nil {
		t.Errorf("Run = %v, want nil", err)
	}
	if service.Stats().Listening {
		t.Error("Stats reports listening after Close")
	}
}

func TestCloseDestroysPendingRequests(t *testing.T) {
	service, err := NewRegistry().Start(testutil.UniqueID("svc.test"), Options{QueueCapacity: 1})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	queued := dialTest(t, service.Name(), "mixer-1")
	// The second request overflows; once it is dropped the first is
	// known to be queued.
	requireEOF(t, dialTest(t, service.Name(), "mixer-2"))
	if pending := service.Stats().Pending; pending != 1 {
		t.Fatalf("Pending = %d, want 1", pending)
	}

	service.Close()
	requireEOF(t, queued)
}

func TestFilesystemServiceName(t *testing.T) {
	name := filepath.Join(testutil.SocketDir(t), "preview.sock")
	registry := NewRegistry()
	service, err := registry.Start(name, Options{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	handler := newChannelHandler()
	runService(t, service, handler)

	dialTest(t, name, "mixer-1")
	testutil.RequireReceive(t, handler.opened, testTimeout, "session over filesystem name").Close()

	service.Close()
	if err := unix.Stat(name, new(unix.Stat_t)); !errors.Is(err, unix.ENOENT) {
		t.Errorf("socket file after Close: %v, want ENOENT", err)
	}
}

func TestDialUnknownService(t *testing.T) {
	_, err := Dial(testutil.UniqueID("nobody"), "mixer-1")
	if !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("Dial = %v, want ErrServiceNotFound", err)
	}
}

func TestSessionsListing(t *testing.T) {
	service := startTestService(t, NewRegistry(), Options{})
	handler := newChannelHandler()
	runService(t, service, handler)

	source := NewSource("mixer-2")
	dialTest(t, service.Name(), "mixer-1")
	dialTest(t, service.Name(), "mixer-2")
	first := testutil.RequireReceive(t, handler.opened, testTimeout, "first")
	second := testutil.RequireReceive(t, handler.opened, testTimeout, "second")
	second.Attach(source)

	infos := service.Sessions()
	if len(infos) != 2 {
		t.Fatalf("Sessions() has %d entries, want 2", len(infos))
	}
	if infos[0].ID != first.ID().String() || infos[1].Source != "mixer-2" {
		t.Errorf("Sessions() = %+v", infos)
	}
	first.Close()
	second.Close()
	if got := len(service.Sessions()); got != 0 {
		t.Errorf("Sessions() after Close has %d entries", got)
	}
}
