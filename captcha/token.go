// File: token.go
package captcha

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// The challenge id is the entire server-side state of an issued puzzle:
//
//	"<nonce>:<unix timestamp>:<base64 HMAC-SHA256>"
//
// The MAC covers nonce || byte(correctIndex) || be64(timestamp). The correct
// index is folded into the MAC input and never transmitted, so tampering
// with any field (index included) can only produce a signature mismatch.
// Nothing needs to be looked up to validate authenticity or freshness.

type tokenParts struct {
	nonce    string
	issuedAt int64
	mac      []byte
}

func computeMAC(secret []byte, nonce string, issuedAt int64, index int) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(nonce))
	mac.Write([]byte{byte(index)})
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(issuedAt))
	mac.Write(ts[:])
	return mac.Sum(nil)
}

// mintChallengeID issues a fresh signed id for the given ground-truth index.
func mintChallengeID(secret []byte, correctIndex int, now int64) string {
	nonce := uuid.New().String()
	code := base64.StdEncoding.EncodeToString(computeMAC(secret, nonce, now, correctIndex))
	return nonce + ":" + strconv.FormatInt(now, 10) + ":" + code
}

// parseChallengeID validates structure only; it performs no crypto.
func parseChallengeID(id string) (tokenParts, error) {
	parts := strings.Split(id, ":")
	if len(parts) != 3 {
		return tokenParts{}, errors.Wrap(ErrMalformedToken, "expected 3 colon-separated parts")
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || ts < 0 {
		return tokenParts{}, errors.Wrap(ErrMalformedToken, "bad timestamp")
	}
	mac, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return tokenParts{}, errors.Wrap(ErrMalformedToken, "bad mac encoding")
	}
	if len(mac) != sha256.Size {
		return tokenParts{}, errors.Wrap(ErrMalformedToken, "bad mac length")
	}
	return tokenParts{nonce: parts[0], issuedAt: ts, mac: mac}, nil
}

// matchIndex recovers the authenticated correct index by trying the MAC for
// every cell, or -1 when no candidate matches (forged or tampered token).
// All nine candidates are always computed with constant-time comparison so
// response latency does not depend on which — if any — index is correct.
func matchIndex(secret []byte, t tokenParts) int {
	match := -1
	for idx := 0; idx < gridCells; idx++ {
		if hmac.Equal(t.mac, computeMAC(secret, t.nonce, t.issuedAt, idx)) && match < 0 {
			match = idx
		}
	}
	return match
}
