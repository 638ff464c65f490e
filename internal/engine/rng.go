package engine

import (
	"crypto/hmac"
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
)

// Source yields uniform floats in [0, 1). Every draw and shuffle in the
// roulette goes through a Source so tests and audits can pin the sequence.
type Source interface {
	Float64() float64
}

// ByteStream expands (server seed, client seed, nonce) into an endless
// HMAC-SHA256 byte stream, 32 bytes per round.
type ByteStream struct {
	seeds  Seeds
	nonce  uint64
	round  uint64
	pos    int
	buffer [32]byte
}

// NewByteStream starts the stream at the given byte cursor.
func NewByteStream(seeds Seeds, nonce uint64, cursor uint64) *ByteStream {
	bs := &ByteStream{
		seeds: seeds,
		nonce: nonce,
		round: cursor / 32,
		pos:   int(cursor % 32),
	}
	bs.fill()
	return bs
}

// Next returns the next byte, rolling over to a new HMAC round as needed.
func (bs *ByteStream) Next() byte {
	if bs.pos >= 32 {
		bs.round++
		bs.pos = 0
		bs.fill()
	}
	b := bs.buffer[bs.pos]
	bs.pos++
	return b
}

// NextFloat consumes exactly 4 bytes.
func (bs *ByteStream) NextFloat() float64 {
	return bytesToFloat([4]byte{bs.Next(), bs.Next(), bs.Next(), bs.Next()})
}

func (bs *ByteStream) fill() {
	h := hmac.New(sha256.New, []byte(bs.seeds.Server))
	fmt.Fprintf(h, "%s:%d:%d", bs.seeds.Client, bs.nonce, bs.round)
	copy(bs.buffer[:], h.Sum(nil))
}

// bytesToFloat maps 4 bytes to [0, 1) as sum(b[i] / 256^(i+1)).
func bytesToFloat(b [4]byte) float64 {
	result := 0.0
	for i, v := range b {
		result += float64(v) / math.Pow(256, float64(i+1))
	}
	return result
}

// Floats returns count floats for one nonce starting at cursor.
func Floats(seeds Seeds, nonce uint64, cursor uint64, count int) []float64 {
	bs := NewByteStream(seeds, nonce, cursor)
	out := make([]float64, count)
	for i := range out {
		out[i] = bs.NextFloat()
	}
	return out
}

// FairSource is a provably fair Source: each spin consumes one nonce, so a
// draw can be replayed later from the revealed server seed.
type FairSource struct {
	mu     sync.Mutex
	seeds  Seeds
	nonce  uint64
	stream *ByteStream
}

// NewFairSource positions the source at startNonce.
func NewFairSource(seeds Seeds, startNonce uint64) *FairSource {
	return &FairSource{
		seeds:  seeds,
		nonce:  startNonce,
		stream: NewByteStream(seeds, startNonce, 0),
	}
}

func (f *FairSource) Float64() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stream.NextFloat()
}

// Advance moves to the next nonce and returns the nonce that was in use.
func (f *FairSource) Advance() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	used := f.nonce
	f.nonce++
	f.stream = NewByteStream(f.seeds, f.nonce, 0)
	return used
}

// Nonce reports the nonce the next float will be drawn from.
func (f *FairSource) Nonce() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce
}

// Seeds returns the seed pair backing the source.
func (f *FairSource) Seeds() Seeds { return f.seeds }

type cryptoSource struct{}

func (cryptoSource) Float64() float64 {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return rand.Float64()
	}
	return float64(binary.BigEndian.Uint64(buf[:])>>11) / (1 << 53)
}

// NewCryptoSource is the default Source for live play.
func NewCryptoSource() Source { return cryptoSource{} }

type seededSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *seededSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

// NewSeededSource is a reproducible Source for simulations and tests.
func NewSeededSource(seed uint64) Source {
	return &seededSource{r: rand.New(rand.NewPCG(seed, 0))}
}
