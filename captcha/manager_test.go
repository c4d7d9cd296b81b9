// File: manager_test.go
package captcha

import (
	"encoding/base64"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, ttl time.Duration, maxAttempts int) *Manager {
	t.Helper()
	opts := DefaultGenerationOptions()
	opts.CellSize = 32
	noise := DefaultNoiseOptions()
	noise.Count = 200
	noise.BlurSigma = 0

	reg := NewInMemoryRegistry(5*time.Minute, maxAttempts)
	mgr, err := NewManager(testSecret, ttl, reg, opts, noise)
	require.NoError(t, err)
	return mgr
}

func TestRoundTripExactlyOnce(t *testing.T) {
	mgr := newTestManager(t, time.Minute, 3)
	ch, err := mgr.GenerateChallenge()
	require.NoError(t, err)
	require.NotEmpty(t, ch.Sprite)
	require.Equal(t, "image/jpeg", ch.MIME)

	ok, err := mgr.VerifyChallenge(ch.ID, ch.correctIndex)
	require.NoError(t, err)
	require.True(t, ok)

	// replaying the same correct answer must fail after invalidation
	ok, err = mgr.VerifyChallenge(ch.ID, ch.correctIndex)
	require.ErrorIs(t, err, ErrNoSuchChallenge)
	require.False(t, ok)
}

func TestWrongAnswerThenCorrect(t *testing.T) {
	mgr := newTestManager(t, time.Minute, 3)
	ch, err := mgr.GenerateChallenge()
	require.NoError(t, err)

	wrong := (ch.correctIndex + 1) % gridCells
	ok, err := mgr.VerifyChallenge(ch.ID, wrong)
	require.NoError(t, err, "a wrong answer with budget left is not an error")
	require.False(t, ok)

	ok, err = mgr.VerifyChallenge(ch.ID, ch.correctIndex)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAttemptBudgetExhaustion(t *testing.T) {
	mgr := newTestManager(t, time.Minute, 3)
	ch, err := mgr.GenerateChallenge()
	require.NoError(t, err)

	wrong := (ch.correctIndex + 1) % gridCells
	for i := 0; i < 3; i++ {
		ok, err := mgr.VerifyChallenge(ch.ID, wrong)
		require.NoError(t, err)
		require.False(t, ok)
	}

	// the budget is gone: even the right answer is rejected
	ok, err := mgr.VerifyChallenge(ch.ID, ch.correctIndex)
	require.ErrorIs(t, err, ErrNoSuchChallenge)
	require.False(t, ok)
}

func TestTamperedMACRejected(t *testing.T) {
	mgr := newTestManager(t, time.Minute, 3)
	ch, err := mgr.GenerateChallenge()
	require.NoError(t, err)

	parts := strings.Split(ch.ID, ":")
	require.Len(t, parts, 3)
	mac, err := base64.StdEncoding.DecodeString(parts[2])
	require.NoError(t, err)

	for i := range mac {
		flipped := append([]byte(nil), mac...)
		flipped[i] ^= 0x01
		forged := parts[0] + ":" + parts[1] + ":" + base64.StdEncoding.EncodeToString(flipped)

		ok, err := mgr.VerifyChallenge(forged, ch.correctIndex)
		require.ErrorIs(t, err, ErrInvalidSignature, "flipping mac byte %d must not verify", i)
		require.False(t, ok)
	}
}

func TestTamperedTimestampRejected(t *testing.T) {
	mgr := newTestManager(t, time.Minute, 3)
	ch, err := mgr.GenerateChallenge()
	require.NoError(t, err)

	parts := strings.Split(ch.ID, ":")
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	require.NoError(t, err)
	forged := parts[0] + ":" + strconv.FormatInt(ts+1, 10) + ":" + parts[2]

	ok, err := mgr.VerifyChallenge(forged, ch.correctIndex)
	require.ErrorIs(t, err, ErrInvalidSignature)
	require.False(t, ok)
}

func TestExpiry(t *testing.T) {
	mgr := newTestManager(t, time.Minute, 3)

	issued := int64(1700000000)
	now := issued
	mgr.now = func() int64 { return now }

	ch, err := mgr.GenerateChallenge()
	require.NoError(t, err)

	now = issued + 61
	ok, err := mgr.VerifyChallenge(ch.ID, ch.correctIndex)
	require.ErrorIs(t, err, ErrExpired)
	require.False(t, ok)

	now = issued + 59
	ok, err = mgr.VerifyChallenge(ch.ID, ch.correctIndex)
	require.NoError(t, err)
	require.True(t, ok, "one second inside the ttl must still verify")
}

func TestMalformedInputs(t *testing.T) {
	mgr := newTestManager(t, time.Minute, 3)

	cases := map[string]struct {
		id    string
		index int
	}{
		"empty_id":       {"", 4},
		"garbage_id":     {"not a token", 4},
		"negative_index": {"nonce:1700000000:AAAA", -1},
		"index_too_big":  {"nonce:1700000000:AAAA", 9},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			ok, err := mgr.VerifyChallenge(c.id, c.index)
			require.ErrorIs(t, err, ErrMalformedToken)
			require.False(t, ok)
		})
	}
}

func TestConcurrentVerifySingleSuccess(t *testing.T) {
	mgr := newTestManager(t, time.Minute, 1)
	ch, err := mgr.GenerateChallenge()
	require.NoError(t, err)

	const callers = 8
	results := make(chan bool, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			ok, _ := mgr.VerifyChallenge(ch.ID, ch.correctIndex)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for ok := range results {
		if ok {
			successes++
		}
	}
	require.Equal(t, 1, successes, "exactly one concurrent caller may win")
}

func TestCorrectCellIsRandomized(t *testing.T) {
	mgr := newTestManager(t, time.Minute, 3)

	seen := make(map[int]struct{})
	for i := 0; i < 40; i++ {
		ch, err := mgr.GenerateChallenge()
		require.NoError(t, err)
		require.GreaterOrEqual(t, ch.correctIndex, 0)
		require.Less(t, ch.correctIndex, gridCells)
		seen[ch.correctIndex] = struct{}{}
	}
	require.Greater(t, len(seen), 1, "correct cell must move between challenges")
}

func TestPNGChallenge(t *testing.T) {
	opts := DefaultGenerationOptions()
	opts.CellSize = 32
	opts.Format = SpritePNG
	noise := DefaultNoiseOptions()
	noise.Count = 100
	noise.BlurSigma = 0

	reg := NewInMemoryRegistry(time.Minute, 3)
	mgr, err := NewManager(testSecret, time.Minute, reg, opts, noise)
	require.NoError(t, err)

	ch, err := mgr.GenerateChallenge()
	require.NoError(t, err)
	require.Equal(t, "image/png", ch.MIME)
	require.True(t, strings.HasPrefix(ch.DataURI(), "data:image/png;base64,"))
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	reg := NewInMemoryRegistry(time.Minute, 3)
	good := DefaultGenerationOptions()
	noise := DefaultNoiseOptions()

	_, err := NewManager(nil, time.Minute, reg, good, noise)
	require.ErrorIs(t, err, ErrConfigurationInvalid)

	_, err = NewManager(testSecret, 0, reg, good, noise)
	require.ErrorIs(t, err, ErrConfigurationInvalid)

	_, err = NewManager(testSecret, time.Minute, nil, good, noise)
	require.ErrorIs(t, err, ErrConfigurationInvalid)

	bad := good
	bad.CellSize = 4
	_, err = NewManager(testSecret, time.Minute, reg, bad, noise)
	require.ErrorIs(t, err, ErrConfigurationInvalid)
}
