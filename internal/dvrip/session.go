package dvrip

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Credentials struct {
	Username string
	Password string
}

type Config struct {
	Address     string // host:port, DVRIP port is usually 34567
	Credentials Credentials

	DialTimeout time.Duration
	IOTimeout   time.Duration
	// KeepAlive is the fallback interval when login does not report one.
	KeepAlive time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.DialTimeout == 0 {
		out.DialTimeout = 5 * time.Second
	}
	if out.IOTimeout == 0 {
		out.IOTimeout = 10 * time.Second
	}
	if out.KeepAlive == 0 {
		out.KeepAlive = 20 * time.Second
	}
	return out
}

// Session is an authenticated DVRIP connection. One request is in flight at
// a time; concurrent callers serialize on the internal mutex. A session that
// hit an I/O error is dead and must be replaced via Connect.
type Session struct {
	cfg  Config
	conn net.Conn
	id   uint32
	seq  uint32

	alive time.Duration

	mu sync.Mutex // serializes request/response pairs on the wire

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup

	deadMu sync.Mutex
	dead   bool
}

type loginResponse struct {
	Ret           int    `json:"Ret"`
	SessionID     string `json:"SessionID"`
	AliveInterval int    `json:"AliveInterval"`
}

// loginOK Ret codes: 100 plain success, 515 success with upgrade hint.
func loginOK(ret int) bool { return ret == 100 || ret == 515 }

// connect dials and authenticates but does not start the keepalive loop.
// The alarm listener owns its own read loop and keeps the session alive
// itself; everything else should use Connect.
func connect(ctx context.Context, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()

	d := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, timeoutErr(err)
	}

	s := &Session{
		cfg:    cfg,
		conn:   conn,
		alive:  cfg.KeepAlive,
		closed: make(chan struct{}),
	}

	if err := s.login(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Connect establishes an authenticated session and starts keepalive.
func Connect(ctx context.Context, cfg Config) (*Session, error) {
	s, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.wg.Add(1)
	go s.keepAliveLoop()
	return s, nil
}

// ConnectWithRetry retries Connect with bounded exponential backoff. Auth
// failures abort immediately: the password will not get better.
func ConnectWithRetry(ctx context.Context, cfg Config, attempts int, backoff time.Duration) (*Session, error) {
	if attempts < 1 {
		attempts = 1
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		s, err := Connect(ctx, cfg)
		if err == nil {
			return s, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("connect %s after %d attempts: %w", cfg.Address, attempts, lastErr)
}

func (s *Session) login(ctx context.Context) error {
	body := map[string]string{
		"EncryptType": "MD5",
		"LoginType":   "DVRIP-Web",
		"UserName":    s.cfg.Credentials.Username,
		"PassWord":    sofiaHash(s.cfg.Credentials.Password),
	}
	raw, err := s.call(ctx, msgLogin, body)
	if err != nil {
		return err
	}

	var resp loginResponse
	if err := decodeJSON(raw, &resp); err != nil {
		return err
	}
	if !loginOK(resp.Ret) {
		return fmt.Errorf("%w: ret=%d", ErrAuthFailed, resp.Ret)
	}

	id, err := parseHexID(resp.SessionID)
	if err != nil {
		return fmt.Errorf("%w: session id %q", ErrProtocol, resp.SessionID)
	}
	s.id = id
	if resp.AliveInterval > 0 {
		s.alive = time.Duration(resp.AliveInterval) * time.Second
	}
	return nil
}

// call writes one request and reads one response, holding the wire lock for
// the whole exchange.
func (s *Session) call(ctx context.Context, msgID uint16, body interface{}) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isDead() {
		return nil, ErrSessionClosed
	}

	payload, err := jsonPayload(body)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(s.cfg.IOTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		s.markDead()
		return nil, err
	}

	s.seq++
	req := &packet{
		SessionID: s.id,
		Sequence:  s.seq,
		MessageID: msgID,
		Payload:   payload,
	}
	if err := writePacket(s.conn, req); err != nil {
		s.markDead()
		return nil, timeoutErr(err)
	}

	resp, err := readPacket(s.conn)
	if err != nil {
		s.markDead()
		return nil, timeoutErr(err)
	}
	return resp.Payload, nil
}

// notify writes a request without waiting for a reply. Used on sessions
// whose read side is owned by a dedicated loop (alarm listener).
func (s *Session) notify(msgID uint16, body interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isDead() {
		return ErrSessionClosed
	}
	payload, err := jsonPayload(body)
	if err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.IOTimeout)); err != nil {
		s.markDead()
		return err
	}
	s.seq++
	req := &packet{SessionID: s.id, Sequence: s.seq, MessageID: msgID, Payload: payload}
	if err := writePacket(s.conn, req); err != nil {
		s.markDead()
		return timeoutErr(err)
	}
	return nil
}

func (s *Session) keepAliveLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.alive)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.IOTimeout)
			_, err := s.call(ctx, msgKeepAlive, map[string]string{
				"Name":      "KeepAlive",
				"SessionID": s.hexID(),
			})
			cancel()
			if err != nil {
				select {
				case <-s.closed: // shutdown, not a failure
				default:
					log.Printf("[DVRIP] keepalive failed, session %s is dead: %v", s.hexID(), err)
				}
				s.markDead()
				return
			}
		}
	}
}

func (s *Session) hexID() string { return fmt.Sprintf("0x%08X", s.id) }

func (s *Session) markDead() {
	s.deadMu.Lock()
	s.dead = true
	s.deadMu.Unlock()
}

// Dead reports whether the session hit a fatal I/O error.
func (s *Session) Dead() bool { return s.isDead() }

func (s *Session) isDead() bool {
	s.deadMu.Lock()
	defer s.deadMu.Unlock()
	return s.dead
}

// Close releases the connection. Idempotent.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.markDead()
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}

func parseHexID(v string) (uint32, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "0x")
	id, err := strconv.ParseUint(v, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(id), nil
}
