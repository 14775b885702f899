// Package passgen generates random passwords and word passphrases for new
// credentials.
package passgen

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Charset selects the alphabet a password is drawn from.
type Charset string

const (
	CharsetAlpha   Charset = "alpha"
	CharsetAlnum   Charset = "alnum"
	CharsetSymbols Charset = "symbols"
)

const (
	DefaultLength = 24
	MaxLength     = 256
	DefaultWords  = 5
)

var (
	ErrInvalidLength  = errors.New("length must be between 1 and 256")
	ErrUnknownCharset = errors.New("unknown charset")
)

const (
	lower   = "abcdefghijklmnopqrstuvwxyz"
	upper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits  = "0123456789"
	symbols = "!@#$%^&*()-_=+[]{}<>?,.:;/~"
)

var alphabets = map[Charset]string{
	CharsetAlpha:   lower + upper,
	CharsetAlnum:   lower + upper + digits,
	CharsetSymbols: lower + upper + digits + symbols,
}

var adjectives = []string{
	"able", "amber", "brave", "calm", "clever", "crisp", "daring", "eager", "early", "fancy",
	"gentle", "happy", "ideal", "jolly", "keen", "lively", "magic", "noble", "oaken", "pearl",
	"quick", "ready", "solar", "tidy", "urban", "vivid", "warm", "young", "zesty", "bright",
	"candid", "elegant", "friendly", "glossy", "humble", "silent",
}

var nouns = []string{
	"anchor", "beacon", "canyon", "dream", "ember", "forest", "galaxy", "harbor", "island", "jungle",
	"kingdom", "lantern", "meadow", "nebula", "ocean", "prairie", "quartz", "river", "summit", "temple",
	"unicorn", "valley", "willow", "xenon", "yonder", "zephyr", "apple", "bridge", "comet", "dragon",
	"feather", "garden", "horizon", "jade", "keeper", "legend",
}

var (
	wordsOnce sync.Once
	wordList  []string
)

// ParseCharset returns the charset named s.
func ParseCharset(s string) (Charset, error) {
	c := Charset(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := alphabets[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCharset, s)
	}
	return c, nil
}

// Generator draws uniformly from a random source.
type Generator struct {
	src io.Reader
}

// New returns a generator backed by crypto/rand.
func New() *Generator {
	return &Generator{src: rand.Reader}
}

// NewWithSource returns a generator reading randomness from r.
func NewWithSource(r io.Reader) *Generator {
	return &Generator{src: r}
}

// Password returns length characters drawn from charset.
func (g *Generator) Password(length int, charset Charset) (string, error) {
	if length < 1 || length > MaxLength {
		return "", ErrInvalidLength
	}
	alphabet, ok := alphabets[charset]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCharset, charset)
	}

	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		idx, err := g.index(len(alphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[idx])
	}
	return b.String(), nil
}

// Passphrase returns count adjective-noun words joined by sep.
func (g *Generator) Passphrase(count int, sep string) (string, error) {
	if count < 1 || count > MaxLength {
		return "", ErrInvalidLength
	}
	list := words()
	out := make([]string, count)
	for i := range out {
		idx, err := g.index(len(list))
		if err != nil {
			return "", err
		}
		out[i] = list[idx]
	}
	return strings.Join(out, sep), nil
}

func words() []string {
	wordsOnce.Do(func() {
		wordList = make([]string, 0, len(adjectives)*len(nouns))
		for _, a := range adjectives {
			for _, n := range nouns {
				wordList = append(wordList, a+"-"+n)
			}
		}
	})
	return wordList
}

// index returns a uniform value in [0, n) by rejection sampling.
func (g *Generator) index(n int) (int, error) {
	var buf [4]byte
	const span = uint64(1) << 32
	limit := span - span%uint64(n)
	for {
		if _, err := io.ReadFull(g.src, buf[:]); err != nil {
			return 0, fmt.Errorf("failed to read random source: %w", err)
		}
		v := uint64(binary.BigEndian.Uint32(buf[:]))
		if v < limit {
			return int(v % uint64(n)), nil
		}
	}
}
