package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const tokenBytes = 16

// RandomString draws n symbols uniformly from alphabet using r. A nil r
// means crypto/rand.
func RandomString(r io.Reader, alphabet string, n int) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	if alphabet == "" {
		return "", fmt.Errorf("empty alphabet")
	}

	chars := []byte(alphabet)
	size := big.NewInt(int64(len(chars)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(r, size)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		out[i] = chars[idx.Int64()]
	}
	return string(out), nil
}

func GenerateToken() (string, error) {
	bytes := make([]byte, tokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// NewSessionID returns a random, unguessable session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// NewConnID returns a time-ordered connection identifier, which keeps log
// lines for one process roughly sortable by connect time.
func NewConnID() string {
	return ulid.Make().String()
}

func MaskCode(code string) string {
	if len(code) <= 4 {
		return "****"
	}
	return code[:4] + "-****"
}
