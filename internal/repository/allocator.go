package repository

import (
	"fmt"
	"io"

	"github.com/openclaw/link-broker-go/internal/config"
	apperrors "github.com/openclaw/link-broker-go/internal/errors"
	"github.com/openclaw/link-broker-go/internal/util"
)

// CodeAllocator draws pairing codes that do not collide with any live code.
// It keeps no state of its own; the live set is supplied per call.
type CodeAllocator struct {
	alphabet    string
	length      int
	maxAttempts int
	random      io.Reader
}

// NewCodeAllocator returns an allocator with the production policy: 8
// symbols from a 32 symbol alphabet without 0/O and 1/I, 10 attempts.
func NewCodeAllocator() *CodeAllocator {
	return NewCodeAllocatorWith(config.PairingCodeAlphabet, config.PairingCodeLength, config.PairingCodeMaxAttempts, nil)
}

// NewCodeAllocatorWith builds an allocator with an explicit policy. A nil
// random source means crypto/rand.
func NewCodeAllocatorWith(alphabet string, length, maxAttempts int, random io.Reader) *CodeAllocator {
	return &CodeAllocator{
		alphabet:    alphabet,
		length:      length,
		maxAttempts: maxAttempts,
		random:      random,
	}
}

func (a *CodeAllocator) Allocate(inUse func(code string) bool) (string, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		code, err := util.RandomString(a.random, a.alphabet, a.length)
		if err != nil {
			return "", fmt.Errorf("generate pairing code: %w", err)
		}
		if !inUse(code) {
			return code, nil
		}
	}
	return "", apperrors.ExhaustedRetries(a.maxAttempts)
}
