// File: token_test.go
package captcha

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var testSecret = []byte("secret-key")

func TestMintParseMatch(t *testing.T) {
	const now = int64(1700000000)
	for idx := 0; idx < gridCells; idx++ {
		id := mintChallengeID(testSecret, idx, now)
		parts, err := parseChallengeID(id)
		require.NoError(t, err)
		require.Equal(t, now, parts.issuedAt)
		require.Equal(t, idx, matchIndex(testSecret, parts))
	}
}

func TestMatchIndexWrongSecret(t *testing.T) {
	id := mintChallengeID(testSecret, 4, 1700000000)
	parts, err := parseChallengeID(id)
	require.NoError(t, err)
	require.Equal(t, -1, matchIndex([]byte("other-secret"), parts))
}

func TestParseRejectsMalformed(t *testing.T) {
	validMAC := base64.StdEncoding.EncodeToString(make([]byte, sha256.Size))
	shortMAC := base64.StdEncoding.EncodeToString([]byte("short"))

	cases := map[string]string{
		"empty":         "",
		"no_delimiters": "justanonce",
		"two_parts":     "nonce:1700000000",
		"four_parts":    "nonce:1700000000:" + validMAC + ":extra",
		"bad_timestamp": "nonce:notanumber:" + validMAC,
		"negative_ts":   "nonce:-5:" + validMAC,
		"bad_base64":    "nonce:1700000000:!!!not-base64!!!",
		"short_mac":     "nonce:1700000000:" + shortMAC,
	}
	for name, id := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseChallengeID(id)
			require.ErrorIs(t, err, ErrMalformedToken)
		})
	}
}

func TestMintedIDsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		id := mintChallengeID(testSecret, 3, 1700000000)
		_, dup := seen[id]
		require.False(t, dup, "duplicate challenge id minted")
		seen[id] = struct{}{}
		require.Len(t, strings.Split(id, ":"), 3, "id must have nonce, timestamp and mac parts")
	}
}
