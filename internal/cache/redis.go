package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultRedisTimeout = 5 * time.Second
	redisKeyPrefix      = "warden:"
)

// RedisConfig holds the connection parameters for the Redis store.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
	Timeout  time.Duration
}

// RedisClient speaks just enough RESP for the Store interface: AUTH,
// SELECT, PING, GET, SET PX, DEL, INCR, PEXPIRE, and PTTL. It holds a
// single connection behind a mutex and reconnects transparently after
// an I/O error.
type RedisClient struct {
	cfg    RedisConfig
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// NewRedisClient connects eagerly so a bad address or credential fails
// at startup rather than on first use.
func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}

	client := &RedisClient{cfg: cfg}

	client.mu.Lock()
	err := client.connectLocked(context.Background())
	client.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Close tears down the connection.
func (c *RedisClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// Ping verifies the connection is alive.
func (c *RedisClient) Ping(ctx context.Context) error {
	status, err := c.commandStatus(ctx, "PING")
	if err != nil {
		return err
	}
	if !strings.EqualFold(status, "PONG") {
		return fmt.Errorf("redis: unexpected PING response %q", status)
	}
	return nil
}

// Get fetches the value under key. A nil bulk reply means absent.
func (c *RedisClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	reply, err := c.command(ctx, "GET", c.prefixed(key))
	if err != nil {
		return nil, false, err
	}

	switch v := reply.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		return v, true, nil
	default:
		return nil, false, fmt.Errorf("redis: unexpected response type %T", v)
	}
}

// Set stores the value with a PX expiry.
func (c *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.commandStatus(ctx, "SET", c.prefixed(key), string(value), "PX", millisArg(ttl))
	return err
}

// Delete removes the given keys. Missing keys are ignored.
func (c *RedisClient) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]string, 0, len(keys)+1)
	args = append(args, "DEL")
	for _, key := range keys {
		args = append(args, c.prefixed(key))
	}
	_, err := c.command(ctx, args...)
	return err
}

// IncrementWithTTL bumps the counter under key, arming the window's
// expiry on the first increment. Returns the count and remaining TTL.
func (c *RedisClient) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	prefixed := c.prefixed(key)

	count, err := c.commandInt(ctx, "INCR", prefixed)
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if _, err := c.commandInt(ctx, "PEXPIRE", prefixed, millisArg(window)); err != nil {
			return 0, 0, err
		}
	}

	// PTTL failures are not fatal; report the nominal window instead.
	ttlMillis, err := c.commandInt(ctx, "PTTL", prefixed)
	if err != nil || ttlMillis < 0 {
		return count, window, nil
	}
	return count, time.Duration(ttlMillis) * time.Millisecond, nil
}

func (c *RedisClient) prefixed(key string) string {
	key = collapseColons(key)
	if strings.HasPrefix(key, redisKeyPrefix) {
		return key
	}
	return collapseColons(redisKeyPrefix + key)
}

// command sends one request and decodes the reply, reconnecting on the
// next call after any transport error.
func (c *RedisClient) command(ctx context.Context, args ...string) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	if err := c.conn.SetDeadline(callDeadline(ctx, c.cfg.Timeout)); err != nil {
		c.dropLocked()
		return nil, err
	}
	if _, err := c.conn.Write(encodeCommand(args)); err != nil {
		c.dropLocked()
		return nil, err
	}

	reply, err := readReply(c.reader)
	if err != nil {
		c.dropLocked()
		return nil, err
	}
	return reply, nil
}

func (c *RedisClient) commandStatus(ctx context.Context, args ...string) (string, error) {
	reply, err := c.command(ctx, args...)
	if err != nil {
		return "", err
	}
	status, ok := reply.(string)
	if !ok {
		return "", fmt.Errorf("redis: unexpected simple response %T", reply)
	}
	return status, nil
}

func (c *RedisClient) commandInt(ctx context.Context, args ...string) (int64, error) {
	reply, err := c.command(ctx, args...)
	if err != nil {
		return 0, err
	}
	switch v := reply.(type) {
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("redis: unexpected integer response %T", v)
	}
}

func (c *RedisClient) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var (
		conn net.Conn
		err  error
	)
	if c.cfg.TLS {
		dialer := &tls.Dialer{NetDialer: &net.Dialer{}}
		conn, err = dialer.DialContext(ctx, "tcp", c.cfg.Address)
	} else {
		dialer := &net.Dialer{}
		conn, err = dialer.DialContext(ctx, "tcp", c.cfg.Address)
	}
	if err != nil {
		return err
	}

	reader := bufio.NewReader(conn)
	if err := conn.SetDeadline(callDeadline(ctx, c.cfg.Timeout)); err != nil {
		conn.Close()
		return err
	}

	if err := handshake(conn, reader, c.cfg); err != nil {
		conn.Close()
		return err
	}

	// Per-call deadlines take over from here.
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.reader = reader
	return nil
}

// handshake runs AUTH and SELECT as the configuration demands.
func handshake(conn net.Conn, reader *bufio.Reader, cfg RedisConfig) error {
	if cfg.Password != "" || cfg.Username != "" {
		args := []string{"AUTH"}
		if cfg.Username != "" {
			args = append(args, cfg.Username, cfg.Password)
		} else {
			args = append(args, cfg.Password)
		}
		if err := expectOK(conn, reader, args, "AUTH"); err != nil {
			return err
		}
	}

	if cfg.DB > 0 {
		if err := expectOK(conn, reader, []string{"SELECT", strconv.Itoa(cfg.DB)}, "SELECT"); err != nil {
			return err
		}
	}
	return nil
}

func expectOK(conn net.Conn, reader *bufio.Reader, args []string, verb string) error {
	if _, err := conn.Write(encodeCommand(args)); err != nil {
		return err
	}
	reply, err := readReply(reader)
	if err != nil {
		return err
	}
	if status, ok := reply.(string); !ok || !strings.EqualFold(status, "OK") {
		return fmt.Errorf("redis: %s failed: %v", verb, reply)
	}
	return nil
}

func (c *RedisClient) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.reader = nil
}

func callDeadline(ctx context.Context, fallback time.Duration) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline
	}
	return time.Now().Add(fallback)
}

// encodeCommand renders args as a RESP array of bulk strings.
func encodeCommand(args []string) []byte {
	var b strings.Builder
	b.WriteByte('*')
	b.WriteString(strconv.Itoa(len(args)))
	b.WriteString("\r\n")
	for _, arg := range args {
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(len(arg)))
		b.WriteString("\r\n")
		b.WriteString(arg)
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}

// readReply decodes one RESP reply. Simple strings come back as string,
// integers as int64, bulk strings as []byte (nil bulk as untyped nil),
// and arrays as []interface{}. Error replies become Go errors.
func readReply(r *bufio.Reader) (interface{}, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	line, err := readReplyLine(r)
	if err != nil {
		return nil, err
	}

	switch prefix {
	case '+':
		return line, nil
	case '-':
		return nil, errors.New(line)
	case ':':
		return strconv.ParseInt(line, 10, 64)
	case '$':
		length, err := strconv.Atoi(line)
		if err != nil {
			return nil, err
		}
		if length == -1 {
			return nil, nil
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		if err := discardCRLF(r); err != nil {
			return nil, err
		}
		return buf, nil
	case '*':
		count, err := strconv.Atoi(line)
		if err != nil {
			return nil, err
		}
		items := make([]interface{}, count)
		for i := range items {
			if items[i], err = readReply(r); err != nil {
				return nil, err
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("redis: unexpected prefix %q", prefix)
	}
}

func readReplyLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"), nil
}

func discardCRLF(r *bufio.Reader) error {
	first, err := r.ReadByte()
	if err != nil {
		return err
	}
	second, err := r.ReadByte()
	if err != nil {
		return err
	}
	if first != '\r' || second != '\n' {
		return errors.New("redis: expected CRLF")
	}
	return nil
}

// collapseColons squashes repeated colons so prefixing cannot produce
// "warden::key".
func collapseColons(key string) string {
	if !strings.Contains(key, "::") {
		return key
	}
	var b strings.Builder
	b.Grow(len(key))
	prevColon := false
	for i := 0; i < len(key); i++ {
		ch := key[i]
		if ch == ':' {
			if prevColon {
				continue
			}
			prevColon = true
		} else {
			prevColon = false
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func millisArg(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	return strconv.FormatInt(d.Milliseconds(), 10)
}
