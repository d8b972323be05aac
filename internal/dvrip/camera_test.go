package dvrip

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeCamera speaks just enough DVRIP to exercise the client side: login,
// keepalive, file query, the two-socket download dance and alarm pushes.
type fakeCamera struct {
	t  *testing.T
	ln net.Listener

	loginRet int
	queryFn  func(begin, end, kind string) []fileQueryRow
	media    [][]byte
	alarms   []string // raw AlarmInfo payloads pushed after AlarmSet

	claims    chan net.Conn
	closeOnce sync.Once
}

func newFakeCamera(t *testing.T) *fakeCamera {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	c := &fakeCamera{
		t:        t,
		ln:       ln,
		loginRet: 100,
		claims:   make(chan net.Conn, 4),
	}
	go c.acceptLoop()
	t.Cleanup(c.Close)
	return c
}

func (c *fakeCamera) Addr() string { return c.ln.Addr().String() }

func (c *fakeCamera) Close() {
	c.closeOnce.Do(func() { c.ln.Close() })
}

func (c *fakeCamera) config() Config {
	return Config{
		Address:     c.Addr(),
		Credentials: Credentials{Username: "admin", Password: ""},
	}
}

func (c *fakeCamera) acceptLoop() {
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			return
		}
		go c.serve(conn)
	}
}

func (c *fakeCamera) serve(conn net.Conn) {
	defer conn.Close()
	for {
		pkt, err := readPacket(conn)
		if err != nil {
			return
		}

		switch pkt.MessageID {
		case msgLogin:
			c.reply(conn, msgLogin, fmt.Sprintf(
				`{"Ret":%d,"SessionID":"0x0000001F","AliveInterval":60}`, c.loginRet))

		case msgKeepAlive:
			c.reply(conn, msgKeepAlive, `{"Ret":100}`)

		case msgFileQuery:
			c.serveQuery(conn, pkt.Payload)

		case msgPlayClaim:
			// Data socket registers itself; media flows once the control
			// socket starts the transfer.
			c.claims <- conn

		case msgPlayControl:
			c.reply(conn, msgPlayControl, `{"Ret":100}`)
			data := <-c.claims
			c.streamMedia(data)

		case msgAlarmSet:
			for _, a := range c.alarms {
				c.push(conn, msgAlarmPush, a)
			}
		}
	}
}

func (c *fakeCamera) serveQuery(conn net.Conn, payload []byte) {
	var req struct {
		OPFileQuery struct {
			BeginTime string `json:"BeginTime"`
			EndTime   string `json:"EndTime"`
			Type      string `json:"Type"`
		} `json:"OPFileQuery"`
	}
	if err := decodeJSON(payload, &req); err != nil {
		c.t.Errorf("fake camera: bad query payload: %v", err)
		return
	}

	var rows []fileQueryRow
	if c.queryFn != nil {
		rows = c.queryFn(req.OPFileQuery.BeginTime, req.OPFileQuery.EndTime, req.OPFileQuery.Type)
	}
	resp := map[string]interface{}{
		"Ret":         100,
		"OPFileQuery": map[string]interface{}{"FileList": rows},
	}
	data, err := json.Marshal(resp)
	require.NoError(c.t, err)
	c.reply(conn, msgFileQuery, string(data))
}

func (c *fakeCamera) streamMedia(conn net.Conn) {
	if len(c.media) == 0 {
		writePacket(conn, &packet{MessageID: msgDownloadData, EndFlag: 1})
		return
	}
	for i, m := range c.media {
		p := &packet{MessageID: msgDownloadData, Payload: m}
		if i == len(c.media)-1 {
			p.EndFlag = 1
		}
		if err := writePacket(conn, p); err != nil {
			return
		}
	}
}

func (c *fakeCamera) reply(conn net.Conn, msgID uint16, body string) {
	c.push(conn, msgID, body)
}

func (c *fakeCamera) push(conn net.Conn, msgID uint16, body string) {
	p := &packet{
		SessionID: 0x1F,
		MessageID: msgID,
		Payload:   append([]byte(body), payloadTail...),
	}
	if err := writePacket(conn, p); err != nil {
		c.t.Logf("fake camera: write failed: %v", err)
	}
}
