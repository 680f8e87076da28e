package ws

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

func testOptions() Options {
	return Options{
		ConnectTimeout: 2 * time.Second,
		CloseTimeout:   2 * time.Second,
		WriteWait:      time.Second,
		SendQueue:      8,
	}
}

// echoServer echoes text frames and closes the connection when it reads "bye".
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "bye" {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				return
			}
			if err := conn.WriteMessage(kind, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func endpointFor(t *testing.T, srv *httptest.Server) domain.Endpoint {
	t.Helper()
	ep, err := domain.NewEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", domain.DefaultEndpointOptions())
	require.NoError(t, err)
	return ep
}

type frames struct {
	mu  sync.Mutex
	got []string
}

func (f *frames) handle(fr core.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, string(fr))
}

func (f *frames) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

func waitDone(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("connection did not terminate")
	}
}

func TestConnection_RoundTrip(t *testing.T) {
	req := require.New(t)
	srv := echoServer(t)

	opts := testOptions()
	opts.Greeting = "hello"
	c := NewConnection(endpointFor(t, srv), opts)
	var in frames
	c.OnFrame(in.handle)

	req.Equal(StateClosed, c.State())
	req.ErrorIs(c.Send(core.Frame("early")), domain.ErrNotConnected)

	req.NoError(c.Connect(context.Background()))
	req.Equal(StateOpen, c.State())
	req.NoError(c.Send(core.Frame("one")))
	req.NoError(c.Send(core.Frame("two")))

	req.Eventually(func() bool { return len(in.list()) == 3 }, 2*time.Second, 10*time.Millisecond)
	req.Equal([]string{"hello", "one", "two"}, in.list())

	req.NoError(c.Disconnect())
	waitDone(t, c)
	req.Equal(StateClosed, c.State())
	req.NoError(c.Err())
	req.ErrorIs(c.Send(core.Frame("late")), domain.ErrNotConnected)
}

func TestConnection_SingleUse(t *testing.T) {
	req := require.New(t)
	srv := echoServer(t)
	c := NewConnection(endpointFor(t, srv), testOptions())

	req.NoError(c.Connect(context.Background()))
	req.ErrorIs(c.Connect(context.Background()), domain.ErrAlreadyConnected)

	req.NoError(c.Disconnect())
	waitDone(t, c)
	req.ErrorIs(c.Connect(context.Background()), domain.ErrConnectionUsed)
}

func TestConnection_DisconnectIsIdempotent(t *testing.T) {
	req := require.New(t)
	srv := echoServer(t)
	c := NewConnection(endpointFor(t, srv), testOptions())

	req.NoError(c.Disconnect())
	req.NoError(c.Disconnect())
	req.Equal(StateClosed, c.State())

	req.NoError(c.Connect(context.Background()))
	req.NoError(c.Disconnect())
	req.NoError(c.Disconnect())
	req.Equal(StateClosed, c.State())
}

func TestConnection_ConnectRefused(t *testing.T) {
	req := require.New(t)
	ep, err := domain.NewEndpoint("ws://127.0.0.1:1/ws", domain.DefaultEndpointOptions())
	req.NoError(err)

	c := NewConnection(ep, testOptions())
	err = c.Connect(context.Background())
	req.ErrorIs(err, domain.ErrConnectFailed)
	req.Equal(StateClosed, c.State())
	waitDone(t, c)
	req.ErrorIs(c.Err(), domain.ErrConnectFailed)
}

func TestConnection_HandshakeTimeout(t *testing.T) {
	req := require.New(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	defer ln.Close()
	go func() {
		// accept and stay silent
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	ep, err := domain.NewEndpoint("ws://"+ln.Addr().String()+"/ws", domain.DefaultEndpointOptions())
	req.NoError(err)
	opts := testOptions()
	opts.ConnectTimeout = 200 * time.Millisecond

	c := NewConnection(ep, opts)
	start := time.Now()
	err = c.Connect(context.Background())
	req.ErrorIs(err, domain.ErrConnectFailed)
	req.Less(time.Since(start), 2*time.Second)
	req.Equal(StateClosed, c.State())
}

func TestConnection_DisconnectWhileConnecting(t *testing.T) {
	req := require.New(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	ep, err := domain.NewEndpoint("ws://"+ln.Addr().String()+"/ws", domain.DefaultEndpointOptions())
	req.NoError(err)
	opts := testOptions()
	opts.ConnectTimeout = 5 * time.Second
	c := NewConnection(ep, opts)

	errc := make(chan error, 1)
	go func() { errc <- c.Connect(context.Background()) }()
	req.Eventually(func() bool { return c.State() == StateConnecting }, time.Second, 5*time.Millisecond)

	req.NoError(c.Disconnect())
	select {
	case err := <-errc:
		req.ErrorIs(err, domain.ErrConnectFailed)
	case <-time.After(2 * time.Second):
		t.Fatal("connect was not canceled")
	}
	req.Equal(StateClosed, c.State())
}

func TestConnection_PeerCloseRunsHooks(t *testing.T) {
	req := require.New(t)
	srv := echoServer(t)
	c := NewConnection(endpointFor(t, srv), testOptions())

	var seen []State
	c.OnClose(func() { seen = append(seen, c.State()) })
	c.OnClose(func() { seen = append(seen, c.State()) })

	req.NoError(c.Connect(context.Background()))
	req.NoError(c.Send(core.Frame("bye")))
	waitDone(t, c)

	req.Equal([]State{StateClosing, StateClosing}, seen)
	req.Equal(StateClosed, c.State())
	req.NoError(c.Err())
}

func TestConnection_BadDisconnectStillCloses(t *testing.T) {
	req := require.New(t)
	srv := echoServer(t)
	c := NewConnection(endpointFor(t, srv), testOptions())
	req.NoError(c.Connect(context.Background()))

	hooked := false
	c.OnClose(func() { hooked = true })
	c.mu.Lock()
	c.endpoint = domain.Endpoint{}
	c.mu.Unlock()

	req.ErrorIs(c.Disconnect(), domain.ErrBadDisconnect)
	waitDone(t, c)
	req.True(hooked)
	req.Equal(StateClosed, c.State())
}

func TestConnection_SendBackpressure(t *testing.T) {
	c := NewConnection(domain.Endpoint{}, Options{SendQueue: 1})
	c.state = StateOpen
	c.send = make(chan core.Frame, 1)

	require.NoError(t, c.Send(core.Frame("a")))
	require.ErrorIs(t, c.Send(core.Frame("b")), domain.ErrBackpressure)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "closed", StateClosed.String())
	require.Equal(t, "connecting", StateConnecting.String())
	require.Equal(t, "open", StateOpen.String())
	require.Equal(t, "closing", StateClosing.String())
	require.Equal(t, "unknown", State(42).String())
}

func TestConnection_DialHooksRunOnlyForAcceptedConnect(t *testing.T) {
	req := require.New(t)
	srv := echoServer(t)
	c := NewConnection(endpointFor(t, srv), testOptions())

	dials := 0
	c.OnDial(func() { dials++ })

	req.NoError(c.Connect(context.Background()))
	req.ErrorIs(c.Connect(context.Background()), domain.ErrAlreadyConnected)
	req.NoError(c.Disconnect())
	waitDone(t, c)
	req.ErrorIs(c.Connect(context.Background()), domain.ErrConnectionUsed)
	req.Equal(1, dials)
}

func TestConnection_ClosedReleasesHandles(t *testing.T) {
	req := require.New(t)
	srv := echoServer(t)
	c := NewConnection(endpointFor(t, srv), testOptions())

	req.NoError(c.Connect(context.Background()))
	req.NoError(c.Disconnect())
	waitDone(t, c)

	c.mu.Lock()
	defer c.mu.Unlock()
	req.Equal(StateClosed, c.state)
	req.Nil(c.conn)
	req.Nil(c.cancel)
}

func TestConnection_FailedConnectReleasesHandles(t *testing.T) {
	ep, err := domain.NewEndpoint("ws://127.0.0.1:1/ws", domain.DefaultEndpointOptions())
	require.NoError(t, err)
	c := NewConnection(ep, testOptions())
	require.ErrorIs(t, c.Connect(context.Background()), domain.ErrConnectFailed)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Nil(t, c.conn)
	require.Nil(t, c.cancel)
}

func TestConnection_BadDisconnectReportedOnceUnderRace(t *testing.T) {
	req := require.New(t)
	srv := echoServer(t)
	c := NewConnection(endpointFor(t, srv), testOptions())
	req.NoError(c.Connect(context.Background()))

	c.mu.Lock()
	c.endpoint = domain.Endpoint{}
	c.mu.Unlock()

	// a peer close racing with several Disconnect calls: whoever moves the
	// connection out of Open decides, and a Disconnect that does so always
	// reports the bad endpoint
	const callers = 4
	errs := make(chan error, callers)
	var start sync.WaitGroup
	start.Add(1)
	for range callers {
		go func() {
			start.Wait()
			errs <- c.Disconnect()
		}()
	}
	_ = c.Send(core.Frame("bye"))
	start.Done()

	bad := 0
	for range callers {
		if err := <-errs; err != nil {
			req.ErrorIs(err, domain.ErrBadDisconnect)
			bad++
		}
	}
	req.LessOrEqual(bad, 1)
	waitDone(t, c)
	req.Equal(StateClosed, c.State())
}

func TestConnection_DisconnectClaimsClosingBeforeHooks(t *testing.T) {
	req := require.New(t)
	srv := echoServer(t)
	c := NewConnection(endpointFor(t, srv), testOptions())
	req.NoError(c.Connect(context.Background()))

	c.mu.Lock()
	c.endpoint = domain.Endpoint{}
	c.mu.Unlock()

	var during State
	c.OnClose(func() { during = c.State() })
	req.ErrorIs(c.Disconnect(), domain.ErrBadDisconnect)
	req.Equal(StateClosing, during)
	// a second call sees Closing or Closed and does nothing
	req.NoError(c.Disconnect())
}
