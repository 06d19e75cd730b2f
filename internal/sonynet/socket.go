package sonynet

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// SocketTimeout bounds how long SendSocketRequest waits on a silent peer
const SocketTimeout = 3 * time.Second

// LineFunc receives each line read from the socket. Returning true ends the
// exchange.
type LineFunc func(line string) bool

// SendSocketRequest writes request to address and feeds every response line
// to fn until fn returns true, the peer closes, or the read times out. On
// EOF or timeout any partial line is delivered before returning.
func SendSocketRequest(ctx context.Context, address, request string, fn LineFunc) error {
	d := net.Dialer{Timeout: SocketTimeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(SocketTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set socket deadline: %w", err)
	}

	if _, err := conn.Write([]byte(request + "\n")); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			var netErr net.Error
			if errors.Is(err, io.EOF) || (errors.As(err, &netErr) && netErr.Timeout()) {
				fn(trimLine(line))
				return nil
			}
			return fmt.Errorf("failed to read response: %w", err)
		}
		if fn(trimLine(line)) {
			return nil
		}
	}
}

func trimLine(line string) string {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
