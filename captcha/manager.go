// File: manager.go
package captcha

import (
	"log"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

// Manager orchestrates challenge generation and verification. All fields
// are immutable after construction; the registry is the only shared mutable
// state and owns its own locking, so a single Manager serves arbitrarily
// many concurrent callers.
type Manager struct {
	secret   []byte
	ttl      int64 // seconds
	registry ChallengeRegistry
	genOpts  GenerationOptions
	noise    NoiseOptions

	now     func() int64      // injectable clock for tests
	newRand func() *rand.Rand // injectable entropy for tests
}

// NewManager validates the configuration and builds a manager. The secret
// keys every token MAC; rotating it invalidates all outstanding challenges.
func NewManager(secret []byte, ttl time.Duration, registry ChallengeRegistry, genOpts GenerationOptions, noise NoiseOptions) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.Wrap(ErrConfigurationInvalid, "empty secret")
	}
	if ttl < time.Second {
		return nil, errors.Wrap(ErrConfigurationInvalid, "ttl below one second")
	}
	if registry == nil {
		return nil, errors.Wrap(ErrConfigurationInvalid, "nil registry")
	}
	if err := genOpts.Validate(); err != nil {
		return nil, err
	}
	if err := noise.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		secret:   append([]byte(nil), secret...),
		ttl:      int64(ttl / time.Second),
		registry: registry,
		genOpts:  genOpts,
		noise:    noise,
		now:      nowUnix,
		newRand:  newSeededRand,
	}, nil
}

// GenerateChallenge composes a fresh sprite, mints its signed id and
// registers the attempt budget. Codec errors fail the whole call; a
// half-rendered sprite is never returned.
func (m *Manager) GenerateChallenge() (*Challenge, error) {
	rng := m.newRand()

	canvas, correct, err := composeSprite(rng, m.genOpts)
	if err != nil {
		return nil, err
	}

	b := canvas.Bounds()
	pts := drawNoisePoints(rng, m.noise, b.Dx(), b.Dy())
	applyNoise(canvas, pts, m.noise)
	if m.noise.BlurSigma > 0 {
		boxBlur(canvas, m.noise.BlurSigma)
	}

	sprite, mime, err := encodeSprite(canvas, m.genOpts)
	if err != nil {
		return nil, err
	}

	now := m.now()
	id := mintChallengeID(m.secret, correct, now)
	m.registry.Register(id)

	log.Printf("captcha generated (cell=%d format=%s bytes=%d)", m.genOpts.CellSize, mime, len(sprite))

	return &Challenge{
		ID:           id,
		Sprite:       sprite,
		MIME:         mime,
		IssuedAt:     now,
		correctIndex: correct,
	}, nil
}

// VerifyChallenge checks a solver's answer against the signed id.
// Check order: structure, signature, expiry, attempt budget, answer.
// A true result is returned exactly once per id; the registry entry is
// invalidated on success so replays fail even with the right answer.
// A wrong answer with budget remaining returns (false, nil) with the
// budget already spent.
func (m *Manager) VerifyChallenge(id string, selectedIndex int) (bool, error) {
	if id == "" {
		return false, errors.Wrap(ErrMalformedToken, "empty challenge id")
	}
	if selectedIndex < 0 || selectedIndex >= gridCells {
		return false, errors.Wrapf(ErrMalformedToken, "selected index %d out of range", selectedIndex)
	}

	t, err := parseChallengeID(id)
	if err != nil {
		return false, err
	}

	correct := matchIndex(m.secret, t)
	if correct < 0 {
		log.Printf("captcha rejected: signature mismatch")
		return false, ErrInvalidSignature
	}

	if m.now()-t.issuedAt > m.ttl {
		log.Printf("captcha rejected: expired")
		return false, ErrExpired
	}

	// Spend an attempt before looking at the answer so that guessing is
	// bounded even when the answer is wrong.
	if _, ok := m.registry.ConsumeAttempt(id); !ok {
		log.Printf("captcha rejected: no live registry entry")
		return false, ErrNoSuchChallenge
	}

	if selectedIndex != correct {
		log.Printf("captcha verification failed")
		return false, nil
	}

	// Success only for the caller that actually removes the live entry;
	// concurrent duplicates observe ok=false here.
	if !m.registry.Invalidate(id) {
		return false, ErrNoSuchChallenge
	}

	log.Printf("captcha verified successfully")
	return true, nil
}
