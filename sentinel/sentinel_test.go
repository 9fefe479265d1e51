package sentinel

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Usub-development/uredis/rediserr"
	"github.com/stretchr/testify/require"
)

// scriptedServer answers SENTINEL get-master-addr-by-name with masterHost/
// masterPort and every other command with +OK. A test can point masterHost/
// masterPort at the server's own address to play both sentinel and master
// with one listener.
type scriptedServer struct {
	ln          net.Listener
	masterHost  string
	masterPort  int
	connections atomic.Int32

	connsMu sync.Mutex
	conns   []net.Conn
}

func newScriptedServer(t *testing.T, masterHost string, masterPort int) *scriptedServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &scriptedServer{ln: ln, masterHost: masterHost, masterPort: masterPort}
	go s.acceptLoop()
	t.Cleanup(s.closeAll)
	return s
}

func (s *scriptedServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.connections.Add(1)
		s.connsMu.Lock()
		s.conns = append(s.conns, conn)
		s.connsMu.Unlock()
		go s.serve(conn)
	}
}

// closeAll shuts the listener and every accepted connection down, so a
// test can simulate the master/sentinel disappearing entirely rather than
// just refusing new connections.
func (s *scriptedServer) closeAll() {
	_ = s.ln.Close()
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
}

func (s *scriptedServer) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		args, err := readCmd(r)
		if err != nil {
			return
		}
		if len(args) == 0 {
			continue
		}
		var out string
		if args[0] == "SENTINEL" {
			out = fmt.Sprintf("*2\r\n$%d\r\n%s\r\n$%d\r\n%d\r\n",
				len(s.masterHost), s.masterHost, len(strconv.Itoa(s.masterPort)), s.masterPort)
		} else {
			out = "+OK\r\n"
		}
		if _, err := conn.Write([]byte(out)); err != nil {
			return
		}
	}
}

func (s *scriptedServer) hostPort() (string, int) {
	addr := s.ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func readCmd(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(trimCRLF(line[1:]))
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		head, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		l, err := strconv.Atoi(trimCRLF(head[1:]))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, l+2)
		total := 0
		for total < len(buf) {
			n, err := r.Read(buf[total:])
			total += n
			if err != nil {
				return nil, err
			}
		}
		args = append(args, string(buf[:l]))
	}
	return args, nil
}

func trimCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func TestResolveMasterReturnsOverriddenHostPort(t *testing.T) {
	master := newScriptedServer(t, "10.0.0.5", 6399)
	sentHost, sentPort := master.hostPort()

	cfg := Config{
		MasterName: "mymaster",
		Sentinels:  []Node{{Host: sentHost, Port: sentPort}},
	}.withDefaults()

	got, err := ResolveMaster(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5", got.Host)
	require.Equal(t, 6399, got.Port)
}

func TestResolveMasterSkipsDeadSentinelAndTriesNext(t *testing.T) {
	deadLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := deadLn.Addr().(*net.TCPAddr)
	require.NoError(t, deadLn.Close()) // nothing listens here anymore

	good := newScriptedServer(t, "10.0.0.9", 7000)
	goodHost, goodPort := good.hostPort()

	cfg := Config{
		MasterName: "mymaster",
		Sentinels: []Node{
			{Host: "127.0.0.1", Port: deadAddr.Port},
			{Host: goodHost, Port: goodPort},
		},
	}.withDefaults()

	got, err := ResolveMaster(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.9", got.Host)
	require.Equal(t, 7000, got.Port)
}

func TestResolveMasterAllFailReturnsIoError(t *testing.T) {
	cfg := Config{
		MasterName: "mymaster",
		Sentinels:  []Node{{Host: "127.0.0.1", Port: 1}},
	}.withDefaults()

	_, err := ResolveMaster(context.Background(), cfg)
	require.Error(t, err)
	require.True(t, rediserr.IsIO(err))
}

func TestPoolCommandForwardsToMaster(t *testing.T) {
	// A single fake server plays both sentinel and master: it answers
	// SENTINEL get-master-addr-by-name with its own address, so resolving
	// and then connecting the master pool both land on the one listener.
	master := newScriptedServer(t, "", 0)
	host, port := master.hostPort()
	master.masterHost, master.masterPort = host, port

	p := New(Config{
		MasterName: "mymaster",
		Sentinels:  []Node{{Host: host, Port: port}},
	})
	defer p.Close()

	v, err := p.Command(context.Background(), "SET", "k", "v")
	require.NoError(t, err)
	s, ok := v.AsString()
	require.True(t, ok)
	require.Equal(t, "OK", s)
}

func TestGetMasterClientAcquiresFromResolvedPool(t *testing.T) {
	master := newScriptedServer(t, "", 0)
	host, port := master.hostPort()
	master.masterHost, master.masterPort = host, port

	p := New(Config{
		MasterName: "mymaster",
		Sentinels:  []Node{{Host: host, Port: port}},
		PoolSize:   2,
	})
	defer p.Close()

	mc, err := p.GetMasterClient(context.Background())
	require.NoError(t, err)
	defer mc.Release(false)

	v, err := mc.Client.Command(context.Background(), "PING")
	require.NoError(t, err)
	s, ok := v.AsString()
	require.True(t, ok)
	require.Equal(t, "OK", s)
}

// TestCommandRetriesOnceThenGivesUp exercises the at-most-once
// retry-on-Io path: once the resolved master is gone for good, Command
// re-resolves exactly once (which fails the same way) and returns an
// error instead of retrying forever.
func TestCommandRetriesOnceThenGivesUp(t *testing.T) {
	master := newScriptedServer(t, "", 0)
	host, port := master.hostPort()
	master.masterHost, master.masterPort = host, port

	p := New(Config{
		MasterName: "mymaster",
		Sentinels:  []Node{{Host: host, Port: port}},
	})
	defer p.Close()

	require.NoError(t, p.Connect(context.Background()))

	mc, err := p.GetMasterClient(context.Background())
	require.NoError(t, err)
	mc.Release(false)

	master.closeAll()

	done := make(chan struct{})
	go func() {
		_, _ = p.Command(context.Background(), "GET", "k")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Command did not return after master went away")
	}
}
