package ocr

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"image"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	"github.com/patrickmn/go-cache"
)

// Memo remembers accepted OCR text for an exact re-upload of the same
// image. Entries are bucketed by perceptual hash and every hit must also
// match the pixel digest, since near-identical prescriptions on the same
// pad share a perceptual hash.
type Memo struct {
	entries *cache.Cache
}

// MemoKey identifies one decoded image
type MemoKey struct {
	Perceptual string
	Digest     string
}

type memoEntry struct {
	digest string
	text   string
}

// NewMemo returns a memo whose entries live for ttl
func NewMemo(ttl time.Duration) *Memo {
	return &Memo{entries: cache.New(ttl, 2*ttl)}
}

// Key hashes img
func (m *Memo) Key(img image.Image) (MemoKey, error) {
	gray := imaging.Grayscale(img)
	hash, err := goimagehash.ExtDifferenceHash(gray, 16, 16)
	if err != nil {
		return MemoKey{}, fmt.Errorf("failed to hash image: %w", err)
	}
	return MemoKey{Perceptual: hash.ToString(), Digest: pixelDigest(img)}, nil
}

// pixelDigest is the sha256 of the image size and its NRGBA pixels
func pixelDigest(img image.Image) string {
	nrgba := imaging.Clone(img)
	h := sha256.New()
	var size [16]byte
	binary.BigEndian.PutUint64(size[:8], uint64(nrgba.Rect.Dx()))
	binary.BigEndian.PutUint64(size[8:], uint64(nrgba.Rect.Dy()))
	h.Write(size[:])
	h.Write(nrgba.Pix)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the text stored for key when the pixels match exactly
func (m *Memo) Get(key MemoKey) (string, bool) {
	v, ok := m.entries.Get(key.Perceptual)
	if !ok {
		return "", false
	}
	entry, ok := v.(memoEntry)
	if !ok || entry.digest != key.Digest {
		return "", false
	}
	return entry.text, true
}

// Put stores text under key with the default TTL, replacing any entry
// with the same perceptual hash
func (m *Memo) Put(key MemoKey, text string) {
	m.entries.Set(key.Perceptual, memoEntry{digest: key.Digest, text: text}, cache.DefaultExpiration)
}

// Len returns the number of live entries
func (m *Memo) Len() int {
	return m.entries.ItemCount()
}
