package dvrip

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Download fetches a file's raw transport stream via OPPlayBack
// DownloadStart. The protocol wants two sockets against one logged-in
// session: the data socket claims the transfer, the control socket starts
// it, then media arrives as 1426 packets on the data socket until a packet
// with a nonzero end flag.
//
// The returned bytes are the raw 1426 stream, still wrapped in the
// camera's frame container. ctx bounds the whole transfer; on expiry the
// data socket is torn down rather than leaked.
func (s *Session) Download(ctx context.Context, fd FileDescriptor) ([]byte, error) {
	begin := fd.BeginTime
	end := fd.EndTime
	// Firmware quirk: StartTime==EndTime makes some builds return nothing.
	if !end.After(begin) {
		end = begin.Add(time.Second)
	}

	body := map[string]interface{}{
		"Name":      "OPPlayBack",
		"SessionID": s.hexID(),
		"OPPlayBack": map[string]interface{}{
			"Action": "DownloadStart",
			"Parameter": map[string]interface{}{
				"FileName":  fd.Path,
				"TransMode": "TCP",
				"Value":     0,
			},
			"StartTime": begin.Format(TimeLayout),
			"EndTime":   end.Format(TimeLayout),
		},
	}

	deadline := time.Now().Add(s.cfg.IOTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}

	d := net.Dialer{Timeout: s.cfg.DialTimeout}
	dataConn, err := d.DialContext(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return nil, timeoutErr(err)
	}
	defer dataConn.Close()

	// Abort the blocking read promptly when ctx is cancelled early.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			dataConn.Close()
		case <-stop:
		}
	}()

	if err := dataConn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	// Data socket claims the transfer for this session.
	claim, err := jsonPayload(body)
	if err != nil {
		return nil, err
	}
	if err := writePacket(dataConn, &packet{SessionID: s.id, MessageID: msgPlayClaim, Payload: claim}); err != nil {
		return nil, timeoutErr(err)
	}

	// Control socket starts it; the reply is consumed and ignored beyond
	// transport errors, the camera reports per-file problems in-band by
	// just ending the stream.
	if _, err := s.call(ctx, msgPlayControl, body); err != nil {
		return nil, fmt.Errorf("download start %s: %w", fd.Path, err)
	}

	var out []byte
	for {
		pkt, err := readPacket(dataConn)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", fd.Path, timeoutErr(err))
		}
		if pkt.MessageID == msgDownloadData && len(pkt.Payload) > 0 {
			out = append(out, pkt.Payload...)
		}
		if pkt.EndFlag != 0 {
			break
		}
	}
	return out, nil
}
