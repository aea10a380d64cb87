package cache

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis answers scripted replies on a real TCP listener and records
// the commands it saw.
type fakeRedis struct {
	t        *testing.T
	listener net.Listener
	replies  map[string]string
	commands chan []string
}

func newFakeRedis(t *testing.T, replies map[string]string) *fakeRedis {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeRedis{
		t:        t,
		listener: listener,
		replies:  replies,
		commands: make(chan []string, 32),
	}
	go s.serve()
	t.Cleanup(func() { listener.Close() })
	return s
}

func (s *fakeRedis) addr() string { return s.listener.Addr().String() }

func (s *fakeRedis) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeRedis) handle(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		args, err := readTestCommand(reader)
		if err != nil {
			return
		}
		s.commands <- args

		reply, ok := s.replies[args[0]]
		if !ok {
			reply = "+OK\r\n"
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			return
		}
	}
}

func readTestCommand(r *bufio.Reader) ([]string, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(header, "*")))
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, count)
	for i := 0; i < count; i++ {
		if _, err := r.ReadString('\n'); err != nil { // $<len>
			return nil, err
		}
		arg, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		args = append(args, strings.TrimSuffix(strings.TrimSuffix(arg, "\n"), "\r"))
	}
	return args, nil
}

func (s *fakeRedis) nextCommand(t *testing.T) []string {
	t.Helper()
	select {
	case args := <-s.commands:
		return args
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command")
		return nil
	}
}

func TestRedisClientRequiresAddress(t *testing.T) {
	_, err := NewRedisClient(RedisConfig{})
	require.ErrorContains(t, err, "address is required")
}

func TestRedisClientSetGetDelete(t *testing.T) {
	server := newFakeRedis(t, map[string]string{
		"SET": "+OK\r\n",
		"GET": "$5\r\nhello\r\n",
		"DEL": ":1\r\n",
	})

	client, err := NewRedisClient(RedisConfig{Address: server.addr(), Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "greeting", []byte("hello"), time.Minute))
	set := server.nextCommand(t)
	assert.Equal(t, []string{"SET", "warden:greeting", "hello", "PX", "60000"}, set)

	value, found, err := client.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), value)
	server.nextCommand(t)

	require.NoError(t, client.Delete(ctx, "greeting", "other"))
	del := server.nextCommand(t)
	assert.Equal(t, []string{"DEL", "warden:greeting", "warden:other"}, del)
}

func TestRedisClientGetMiss(t *testing.T) {
	server := newFakeRedis(t, map[string]string{"GET": "$-1\r\n"})

	client, err := NewRedisClient(RedisConfig{Address: server.addr(), Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	_, found, err := client.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisClientAuthHandshake(t *testing.T) {
	server := newFakeRedis(t, nil)

	client, err := NewRedisClient(RedisConfig{
		Address:  server.addr(),
		Username: "warden",
		Password: "sekrit",
		DB:       2,
		Timeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	assert.Equal(t, []string{"AUTH", "warden", "sekrit"}, server.nextCommand(t))
	assert.Equal(t, []string{"SELECT", "2"}, server.nextCommand(t))
}

func TestReadReply(t *testing.T) {
	read := func(raw string) (interface{}, error) {
		return readReply(bufio.NewReader(bytes.NewBufferString(raw)))
	}

	status, err := read("+PONG\r\n")
	require.NoError(t, err)
	assert.Equal(t, "PONG", status)

	n, err := read(":42\r\n")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	bulk, err := read("$3\r\nfoo\r\n")
	require.NoError(t, err)
	assert.Equal(t, []byte("foo"), bulk)

	nilBulk, err := read("$-1\r\n")
	require.NoError(t, err)
	assert.Nil(t, nilBulk)

	arr, err := read("*2\r\n:1\r\n$2\r\nok\r\n")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(1), []byte("ok")}, arr)

	_, err = read("-ERR wrong number of arguments\r\n")
	assert.ErrorContains(t, err, "wrong number of arguments")

	_, err = read("?bogus\r\n")
	assert.ErrorContains(t, err, "unexpected prefix")
}

func TestEncodeCommand(t *testing.T) {
	encoded := encodeCommand([]string{"SET", "k", "v"})
	assert.Equal(t, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n", string(encoded))
}

func TestCollapseColons(t *testing.T) {
	assert.Equal(t, "warden:a:b", collapseColons("warden::a::b"))
	assert.Equal(t, "plain", collapseColons("plain"))
	assert.Equal(t, "", collapseColons(""))
}
