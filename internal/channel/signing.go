package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"

	"github.com/switchboard-io/switchboard/internal/serde"
)

// SignChallenge computes the take-over handshake's AuthResponse signature:
// HMAC-SHA256(psk, randomBytes) step 3.
func SignChallenge(psk, randomBytes []byte) []byte {
	mac := hmac.New(sha256.New, psk)
	mac.Write(randomBytes)
	return mac.Sum(nil)
}

// VerifyChallenge reports whether signature is the correct HMAC for
// randomBytes under psk, using a constant-time comparison.
func VerifyChallenge(psk, randomBytes, signature []byte) bool {
	return hmac.Equal(SignChallenge(psk, randomBytes), signature)
}

// SignControlCommand computes a ControlCommand's signature. The HMAC input
// is seq || ts || signer_name || bincode(data).
func SignControlCommand(psk []byte, seq uint64, ts int64, signerName string, data serde.Value) ([]byte, error) {
	input, err := controlCommandSigningInput(seq, ts, signerName, data)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, psk)
	mac.Write(input)
	return mac.Sum(nil), nil
}

// VerifyControlCommand reports whether a ControlCommand's signature is
// valid for the given psk.
func VerifyControlCommand(psk []byte, cmd ControlCommand) (bool, error) {
	expected, err := SignControlCommand(psk, cmd.Seq, cmd.Ts, cmd.SignerName, cmd.Data)
	if err != nil {
		return false, err
	}
	return hmac.Equal(expected, cmd.Signature), nil
}

func controlCommandSigningInput(seq uint64, ts int64, signerName string, data serde.Value) ([]byte, error) {
	encodedData, err := serde.BincodeCodec{}.EncodeValue(data)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 8+8+len(signerName)+len(encodedData))
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	buf = append(buf, seqBuf[:]...)

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(ts))
	buf = append(buf, tsBuf[:]...)

	buf = append(buf, []byte(signerName)...)
	buf = append(buf, encodedData...)
	return buf, nil
}
