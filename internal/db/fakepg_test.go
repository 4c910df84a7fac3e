package db

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/stretchr/testify/require"
)

// fakeBackend speaks just enough of the Postgres wire protocol for pgx to
// connect and ping: trust auth, then an empty response to every simple
// query. Tests use it to kill server connections from the server side.
type fakeBackend struct {
	ln net.Listener

	mu      sync.Mutex
	conns   map[*backendConn]struct{}
	nextPID atomic.Uint32
	wg      sync.WaitGroup
}

type backendConn struct {
	mu   sync.Mutex
	conn net.Conn
	be   *pgproto3.Backend
}

func startFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fb := &fakeBackend{ln: ln, conns: make(map[*backendConn]struct{})}
	fb.wg.Add(1)
	go fb.acceptLoop()

	t.Cleanup(func() {
		_ = ln.Close()
		fb.mu.Lock()
		for c := range fb.conns {
			_ = c.conn.Close()
		}
		fb.mu.Unlock()
		fb.wg.Wait()
	})
	return fb
}

// config points a ConnectionConfig at the fake server.
func (fb *fakeBackend) config() ConnectionConfig {
	return ConnectionConfig{
		Host:     "127.0.0.1",
		Port:     fb.ln.Addr().(*net.TCPAddr).Port,
		User:     "portal",
		Database: "employee_portal",
	}
}

func (fb *fakeBackend) acceptLoop() {
	defer fb.wg.Done()
	for {
		conn, err := fb.ln.Accept()
		if err != nil {
			return
		}
		fb.wg.Add(1)
		go fb.serve(conn)
	}
}

func (fb *fakeBackend) serve(conn net.Conn) {
	defer fb.wg.Done()
	defer conn.Close()

	c := &backendConn{conn: conn, be: pgproto3.NewBackend(conn, conn)}

startup:
	for {
		msg, err := c.be.ReceiveStartupMessage()
		if err != nil {
			return
		}
		switch msg.(type) {
		case *pgproto3.SSLRequest, *pgproto3.GSSEncRequest:
			// No encryption; pgx falls back to a plain connection.
			if _, err := conn.Write([]byte("N")); err != nil {
				return
			}
		case *pgproto3.StartupMessage:
			break startup
		default:
			return
		}
	}

	fb.mu.Lock()
	fb.conns[c] = struct{}{}
	fb.mu.Unlock()
	defer func() {
		fb.mu.Lock()
		delete(fb.conns, c)
		fb.mu.Unlock()
	}()

	c.mu.Lock()
	c.be.Send(&pgproto3.AuthenticationOk{})
	c.be.Send(&pgproto3.ParameterStatus{Name: "server_version", Value: "15.0"})
	c.be.Send(&pgproto3.BackendKeyData{ProcessID: fb.nextPID.Add(1), SecretKey: 7})
	c.be.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	err := c.be.Flush()
	c.mu.Unlock()
	if err != nil {
		return
	}

	for {
		msg, err := c.be.Receive()
		if err != nil {
			return
		}
		switch msg.(type) {
		case *pgproto3.Query:
			c.mu.Lock()
			c.be.Send(&pgproto3.EmptyQueryResponse{})
			c.be.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
			err = c.be.Flush()
			c.mu.Unlock()
			if err != nil {
				return
			}
		default:
			// Terminate, or anything this fake does not speak.
			return
		}
	}
}

// terminateAll does what pg_terminate_backend does to every open session:
// a FATAL 57P01 followed by the server closing the socket.
func (fb *fakeBackend) terminateAll() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	for c := range fb.conns {
		c.mu.Lock()
		c.be.Send(&pgproto3.ErrorResponse{
			Severity: "FATAL",
			Code:     "57P01",
			Message:  "terminating connection due to administrator command",
		})
		_ = c.be.Flush()
		_ = c.conn.Close()
		c.mu.Unlock()
	}
	return len(fb.conns)
}
