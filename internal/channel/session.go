package channel

import (
	"crypto/rand"
	"net"
	"sync"
)

// Session wraps one stream connection (Unix domain socket or TCP) with
// the control channel's framing.
type Session struct {
	conn net.Conn
	reader *FrameReader
	writer *FrameWriter
}

// NewSession wraps conn for framed message exchange. Both peers of a
// session must agree on maxFrameSize.
func NewSession(conn net.Conn, maxFrameSize uint32) *Session {
	return &Session{
		conn: conn,
		reader: NewFrameReader(conn, maxFrameSize),
		writer: NewFrameWriter(conn, maxFrameSize),
	}
}

func (s *Session) Send(msg Message) error { return s.writer.WriteMessage(msg) }
func (s *Session) Recv() (Message, error) { return s.reader.ReadMessage() }
func (s *Session) Close() error { return s.conn.Close() }
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// ControllerTakeOver drives the controller side of the take-over
// handshake: send TakeOver, await the kernel's
// Auth challenge, sign it with psk, and reply with AuthResponse.
func ControllerTakeOver(sess *Session, psk []byte, controllerInfo string) error {
	if err := sess.Send(TakeOver{ControllerInfo: controllerInfo}); err != nil {
		return err
	}
	msg, err := sess.Recv()
	if err != nil {
		return err
	}
	auth, ok := msg.(Auth)
	if !ok {
		return &UnexpectedMessageError{Expected: "auth", Got: msg.messageKind()}
	}
	return sess.Send(AuthResponse{Signature: SignChallenge(psk, auth.RandomBytes)})
}

// KernelAcceptTakeOver drives the kernel side of the take-over handshake
// once a TakeOver message has been received: it issues a 16-byte random
// challenge, awaits AuthResponse, and verifies the HMAC. On success the
// caller should treat sess as the new authoritative session and notify
// any prior controller via BeenTookOver.
func KernelAcceptTakeOver(sess *Session, psk []byte, kernelInfo string) error {
	random := make([]byte, 16)
	if _, err := rand.Read(random); err != nil {
		return err
	}
	if err := sess.Send(Auth{RandomBytes: random, KernelInfo: kernelInfo}); err != nil {
		return err
	}
	msg, err := sess.Recv()
	if err != nil {
		return err
	}
	resp, ok := msg.(AuthResponse)
	if !ok {
		return &UnexpectedMessageError{Expected: "auth_response", Got: msg.messageKind()}
	}
	if !VerifyChallenge(psk, random, resp.Signature) {
		return &AuthMismatchError{}
	}
	return nil
}

// ReplayGuard tracks, per signer name, the last accepted ControlCommand
// sequence number. A command is rejected unless its seq is strictly
// greater than the last one accepted from that signer.
type ReplayGuard struct {
	mu sync.Mutex
	lastSeq map[string]uint64
}

func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{lastSeq: map[string]uint64{}}
}

// Check validates seq against the signer's last accepted seq and, if it
// passes, records seq as the new high-water mark.
func (g *ReplayGuard) Check(signer string, seq uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.lastSeq[signer]; ok && seq <= last {
		return &ReplaySeqError{Signer: signer, Seq: seq, LastSeq: last}
	}
	g.lastSeq[signer] = seq
	return nil
}

// KernelControlHandler verifies and acknowledges ControlCommands arriving
// on a kernel's authoritative session: HMAC verification, then replay
// protection, then ack.
type KernelControlHandler struct {
	sess *Session
	psk []byte
	replay *ReplayGuard
}

func NewKernelControlHandler(sess *Session, psk []byte) *KernelControlHandler {
	return &KernelControlHandler{sess: sess, psk: psk, replay: NewReplayGuard()}
}

// Handle verifies cmd's signature and sequence number. On success it
// sends ControlCommandAccepted and returns nil; the caller then applies
// cmd.Data (e.g. a config push) and reports that separately (see
// ConfigPushResult). On a verification failure it sends
// ControlCommandRejected with the reason and returns the error.
func (h *KernelControlHandler) Handle(cmd ControlCommand) error {
	if err := h.verify(cmd); err != nil {
		_ = h.sess.Send(ControlCommandRejected{Seq: cmd.Seq, Error: err.Error()})
		return err
	}
	return h.sess.Send(ControlCommandAccepted{Seq: cmd.Seq})
}

func (h *KernelControlHandler) verify(cmd ControlCommand) error {
	ok, err := VerifyControlCommand(h.psk, cmd)
	if err != nil {
		return err
	}
	if !ok {
		return &AuthMismatchError{}
	}
	return h.replay.Check(cmd.SignerName, cmd.Seq)
}
