package sonynet

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
)

const wolPort = 9

// MagicPacket builds the wake-on-lan payload for mac, given as six hex
// octets separated by ':' or '-'
func MagicPacket(mac string) ([]byte, error) {
	octets := strings.FieldsFunc(mac, func(r rune) bool { return r == ':' || r == '-' })
	if len(octets) != 6 {
		return nil, fmt.Errorf("invalid MAC address: %s", mac)
	}

	hw := make([]byte, 0, 6)
	for _, o := range octets {
		b, err := hex.DecodeString(o)
		if err != nil || len(b) != 1 {
			return nil, fmt.Errorf("invalid hex digit in MAC address: %s", mac)
		}
		hw = append(hw, b[0])
	}

	packet := bytes.Repeat([]byte{0xff}, 6)
	for i := 0; i < 16; i++ {
		packet = append(packet, hw...)
	}
	return packet, nil
}

// SendWOL broadcasts a magic packet for mac on the /24 network of ipAddress
func SendWOL(ctx context.Context, ipAddress, mac string) error {
	packet, err := MagicPacket(mac)
	if err != nil {
		return err
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, ipAddress)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", ipAddress, err)
	}

	var ip net.IP
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			ip = v4
			break
		}
	}
	if ip == nil {
		return fmt.Errorf("no IPv4 address for %s", ipAddress)
	}

	broadcast := make(net.IP, len(ip))
	copy(broadcast, ip)
	broadcast[len(broadcast)-1] = 255

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp4", net.JoinHostPort(broadcast.String(), fmt.Sprint(wolPort)))
	if err != nil {
		return fmt.Errorf("failed to open WOL socket: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write(packet); err != nil {
		return fmt.Errorf("failed to send WOL packet: %w", err)
	}
	return nil
}

// IsMACAddress reports whether s is shaped like aa:bb:cc:dd:ee:ff
func IsMACAddress(s string) bool {
	if len(s) != 17 {
		return false
	}
	for i := 1; i <= 5; i++ {
		c := s[i*3-1]
		if c != ':' && c != '-' {
			return false
		}
	}
	return true
}

// MACFromWOL extracts the MAC address from a wake-on-lan payload
func MACFromWOL(packet []byte) (string, bool) {
	if len(packet) < 12 {
		return "", false
	}
	parts := make([]string, 0, 6)
	for _, b := range packet[6:12] {
		parts = append(parts, fmt.Sprintf("%02x", b))
	}
	return strings.Join(parts, ":"), true
}
