package kernel

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/switchboard-io/switchboard/internal/core"
	"github.com/switchboard-io/switchboard/internal/switchboard"
)

// Socks5ServiceProvider is the switchboard.ServiceRegistry provider name
// for a bare CONNECT-only SOCKS5 proxy. TCPServiceConfig.Config carries no
// fields for it; every accepted connection is handled identically.
const Socks5ServiceProvider = "socks5"

const (
	socks5Version = 0x05

	socks5MethodNoAuth       = 0x00
	socks5MethodNoAcceptable = 0xFF

	socks5CmdConnect = 0x01

	socks5AddrIPv4   = 0x01
	socks5AddrDomain = 0x03
	socks5AddrIPv6   = 0x04

	socks5RepSuccess              = 0x00
	socks5RepGeneralFailure        = 0x01
	socks5RepNetworkUnreachable    = 0x03
	socks5RepHostUnreachable       = 0x04
	socks5RepConnectionRefused     = 0x05
	socks5RepCommandNotSupported   = 0x07
	socks5RepAddrTypeNotSupported  = 0x08
)

// NewSocks5ServiceConstructor returns the switchboard.ServiceConstructor
// for Socks5ServiceProvider. No-auth only, matching the original's
// Socks5::no_auth() — the method-negotiation step always selects
// socks5MethodNoAuth when offered, and rejects the handshake otherwise.
func NewSocks5ServiceConstructor() switchboard.ServiceConstructor {
	return func(core.TCPServiceConfig) (switchboard.Service, error) {
		return &Socks5Service{}, nil
	}
}

// Socks5Service implements a CONNECT-only SOCKS5 proxy (RFC 1928): method
// negotiation, a CONNECT request with IPv4/IPv6/domain addressing, a reply
// carrying the outbound connection's local address, then a bidirectional
// byte relay until either side closes.
type Socks5Service struct{}

func (s *Socks5Service) Serve(ctx context.Context, conn net.Conn, peer net.Addr) error {
	if err := socks5Negotiate(conn); err != nil {
		return fmt.Errorf("socks5: negotiating method with %s: %w", peer, err)
	}

	network, address, err := socks5ReadRequest(conn)
	if err != nil {
		return fmt.Errorf("socks5: reading request from %s: %w", peer, err)
	}

	var dialer net.Dialer
	outbound, dialErr := dialer.DialContext(ctx, network, address)
	rep := socks5ReplyCode(dialErr)
	bindAddr := "0.0.0.0:0"
	if dialErr == nil {
		bindAddr = outbound.LocalAddr().String()
	}
	if err := socks5WriteReply(conn, rep, bindAddr); err != nil {
		if outbound != nil {
			_ = outbound.Close()
		}
		return fmt.Errorf("socks5: writing reply to %s: %w", peer, err)
	}
	if dialErr != nil {
		return fmt.Errorf("socks5: dialing %s for %s: %w", address, peer, dialErr)
	}
	defer outbound.Close()

	return socks5Relay(ctx, conn, outbound)
}

// socks5Negotiate reads the method-selection message and replies, failing
// the connection unless the client offered socks5MethodNoAuth.
func socks5Negotiate(conn net.Conn) error {
	header := make([]byte, 2)
	if _, err := io.ReadFull(conn, header); err != nil {
		return err
	}
	if header[0] != socks5Version {
		return fmt.Errorf("unsupported SOCKS version %d", header[0])
	}
	methods := make([]byte, header[1])
	if _, err := io.ReadFull(conn, methods); err != nil {
		return err
	}

	selected := byte(socks5MethodNoAcceptable)
	for _, m := range methods {
		if m == socks5MethodNoAuth {
			selected = socks5MethodNoAuth
			break
		}
	}
	if _, err := conn.Write([]byte{socks5Version, selected}); err != nil {
		return err
	}
	if selected == socks5MethodNoAcceptable {
		return errors.New("client offered no acceptable authentication method")
	}
	return nil
}

// socks5ReadRequest reads a CONNECT request and returns a network/address
// pair dialable via net.Dialer.DialContext. Only CMD_CONNECT is
// supported; BIND and UDP ASSOCIATE are rejected as the original's
// TcpService::serve does not implement them either.
func socks5ReadRequest(conn net.Conn) (network, address string, err error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return "", "", err
	}
	if header[0] != socks5Version {
		return "", "", fmt.Errorf("unsupported SOCKS version %d", header[0])
	}
	if header[1] != socks5CmdConnect {
		_ = socks5WriteReply(conn, socks5RepCommandNotSupported, "0.0.0.0:0")
		return "", "", fmt.Errorf("unsupported command %d", header[1])
	}

	switch header[3] {
	case socks5AddrIPv4:
		addr := make([]byte, 4+2)
		if _, err := io.ReadFull(conn, addr); err != nil {
			return "", "", err
		}
		port := binary.BigEndian.Uint16(addr[4:])
		return "tcp", net.JoinHostPort(net.IP(addr[:4]).String(), fmt.Sprint(port)), nil
	case socks5AddrIPv6:
		addr := make([]byte, 16+2)
		if _, err := io.ReadFull(conn, addr); err != nil {
			return "", "", err
		}
		port := binary.BigEndian.Uint16(addr[16:])
		return "tcp", net.JoinHostPort(net.IP(addr[:16]).String(), fmt.Sprint(port)), nil
	case socks5AddrDomain:
		lenBuf := make([]byte, 1)
		if _, err := io.ReadFull(conn, lenBuf); err != nil {
			return "", "", err
		}
		domain := make([]byte, int(lenBuf[0])+2)
		if _, err := io.ReadFull(conn, domain); err != nil {
			return "", "", err
		}
		port := binary.BigEndian.Uint16(domain[len(domain)-2:])
		host := string(domain[:len(domain)-2])
		return "tcp", net.JoinHostPort(host, fmt.Sprint(port)), nil
	default:
		_ = socks5WriteReply(conn, socks5RepAddrTypeNotSupported, "0.0.0.0:0")
		return "", "", fmt.Errorf("unsupported address type %d", header[3])
	}
}

// socks5ReplyCode maps a dial error to a SOCKS5 REP byte, mirroring the
// original's io::ErrorKind match on the connect result.
func socks5ReplyCode(err error) byte {
	switch {
	case err == nil:
		return socks5RepSuccess
	case errors.Is(err, syscall.ECONNREFUSED):
		return socks5RepConnectionRefused
	case isDNSOrUnreachableError(err):
		return socks5RepHostUnreachable
	default:
		return socks5RepGeneralFailure
	}
}

func isDNSOrUnreachableError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func socks5WriteReply(conn net.Conn, rep byte, bindAddr string) error {
	host, portStr, err := net.SplitHostPort(bindAddr)
	if err != nil {
		host, portStr = "0.0.0.0", "0"
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ip = net.IPv4zero
	}
	var port uint16
	fmt.Sscan(portStr, &port)

	buf := make([]byte, 0, 22)
	buf = append(buf, socks5Version, rep, 0x00)
	if ip4 := ip.To4(); ip4 != nil {
		buf = append(buf, socks5AddrIPv4)
		buf = append(buf, ip4...)
	} else {
		buf = append(buf, socks5AddrIPv6)
		buf = append(buf, ip.To16()...)
	}
	portBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(portBytes, port)
	buf = append(buf, portBytes...)

	_, err = conn.Write(buf)
	return err
}

// socks5Relay copies bytes in both directions until one side closes or ctx
// is cancelled, matching the original's tokio::io::copy_bidirectional
// under a cancellation token.
func socks5Relay(ctx context.Context, a, b net.Conn) error {
	done := make(chan error, 2)
	go func() {
		_, err := io.Copy(a, b)
		closeWrite(a)
		done <- err
	}()
	go func() {
		_, err := io.Copy(b, a)
		closeWrite(b)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		<-done
		return err
	}
}

// closeWrite half-closes conn if it supports it (net.TCPConn does), so the
// peer sees EOF on its read side without tearing down the other direction
// of the relay.
func closeWrite(conn net.Conn) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
}
