package pool

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Usub-development/uredis/client"
	"github.com/stretchr/testify/require"
)

// fakeServer accepts any number of connections and answers every command
// with +OK, mirroring the minimal server stub client_test.go uses.
type fakeServer struct {
	ln net.Listener
}

func newFakeServer(t *testing.T) *fakeServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	fs := &fakeServer{ln: ln}
	go fs.acceptLoop()
	return fs
}

func (fs *fakeServer) acceptLoop() {
	for {
		conn, err := fs.ln.Accept()
		if err != nil {
			return
		}
		go fs.serve(conn)
	}
}

func (fs *fakeServer) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		n, err := readArrayLen(r)
		if err != nil {
			return
		}
		for i := 0; i < n; i++ {
			if _, err := readBulk(r); err != nil {
				return
			}
		}
		if _, err := conn.Write([]byte("+OK\r\n")); err != nil {
			return
		}
	}
}

func readArrayLen(r *bufio.Reader) (int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(trimCRLF(line[1:]))
}

func readBulk(r *bufio.Reader) (string, error) {
	head, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	l, err := strconv.Atoi(trimCRLF(head[1:]))
	if err != nil {
		return "", err
	}
	buf := make([]byte, l+2)
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return "", err
		}
	}
	return string(buf[:l]), nil
}

func trimCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func (fs *fakeServer) hostPort() (string, int) {
	addr := fs.ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func (fs *fakeServer) close() { _ = fs.ln.Close() }

func testConfig(t *testing.T, size int) Config {
	fs := newFakeServer(t)
	t.Cleanup(fs.close)
	host, port := fs.hostPort()
	return Config{
		Config: client.Config{Host: host, Port: port},
		Size:   size,
	}
}

func TestAcquireReleaseReusesClient(t *testing.T) {
	p := New(testConfig(t, 2))
	defer p.Close()

	ctx := context.Background()
	c1, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, p.LiveCount())

	p.Release(c1, false)
	c2, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.Same(t, c1, c2)
	require.Equal(t, 1, p.LiveCount())
	p.Release(c2, false)
}

func TestLiveCountNeverExceedsSize(t *testing.T) {
	const size = 3
	p := New(testConfig(t, size))
	defer p.Close()

	ctx := context.Background()
	var mu sync.Mutex
	var maxSeen int
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := p.Acquire(ctx)
			if err != nil {
				return
			}
			mu.Lock()
			if lc := p.LiveCount(); lc > maxSeen {
				maxSeen = lc
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			p.Release(c, false)
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, maxSeen, size)
}

func TestFaultyReleaseDropsClient(t *testing.T) {
	p := New(testConfig(t, 2))
	defer p.Close()

	ctx := context.Background()
	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, p.LiveCount())

	p.Release(c, true)
	require.Equal(t, 0, p.LiveCount())
}

func TestAcquireAfterCloseReturnsErrClosed(t *testing.T) {
	p := New(testConfig(t, 1))
	require.NoError(t, p.Close())

	_, err := p.Acquire(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	p := New(testConfig(t, 1))
	defer p.Close()

	ctx := context.Background()
	c1, err := p.Acquire(ctx)
	require.NoError(t, err)

	acquired := make(chan *client.Client, 1)
	go func() {
		c2, err := p.Acquire(ctx)
		if err == nil {
			acquired <- c2
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire returned before release")
	case <-time.After(30 * time.Millisecond):
	}

	p.Release(c1, false)
	select {
	case c2 := <-acquired:
		require.Same(t, c1, c2)
	case <-time.After(time.Second):
		t.Fatal("second Acquire never unblocked after release")
	}
}

func TestConnectAllPrewarms(t *testing.T) {
	p := New(testConfig(t, 3))
	defer p.Close()

	require.NoError(t, p.ConnectAll(context.Background()))
	require.Equal(t, 3, p.LiveCount())
}
