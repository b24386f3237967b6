package fairness

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// hexChars is the number of digest characters used per draw (52 bits),
// the widest integer a float64 fraction holds without rounding.
const hexChars = 13

const drawScale = float64(uint64(1) << 52)

// DrawFn returns the uniform float in [0,1) for one sub-draw of a stream.
type DrawFn func(subIndex int) float64

// Receipt is the public part of a draw stream, enough to recompute every
// outcome once the server seed is revealed.
type Receipt struct {
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed"`
	Nonce          uint64 `json:"nonce"`
}

// MintStream binds a draw function to one (serverSeed, clientSeed, nonce)
// triple. The returned function is pure.
func MintStream(serverSeed, clientSeed string, nonce uint64) DrawFn {
	key := []byte(serverSeed)
	return func(subIndex int) float64 {
		return drawFromDigest(digest(key, clientSeed, nonce, subIndex))
	}
}

// Draw computes a single sub-draw without keeping a stream around.
func Draw(serverSeed, clientSeed string, nonce uint64, subIndex int) float64 {
	return MintStream(serverSeed, clientSeed, nonce)(subIndex)
}

// Digest returns the full hex HMAC for a sub-draw, shown on verification pages.
func Digest(serverSeed, clientSeed string, nonce uint64, subIndex int) string {
	return digest([]byte(serverSeed), clientSeed, nonce, subIndex)
}

// FairMeta packages the public commitment with the bet's own parameters.
func FairMeta(serverSeedHash, clientSeed string, nonce uint64) Receipt {
	return Receipt{
		ServerSeedHash: serverSeedHash,
		ClientSeed:     clientSeed,
		Nonce:          nonce,
	}
}

// HashSeed is the one-way commitment published before a seed is used.
func HashSeed(serverSeed string) string {
	sum := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(sum[:])
}

// GenerateSeed returns 32 bytes of crypto/rand entropy, hex encoded.
func GenerateSeed() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate server seed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func digest(key []byte, clientSeed string, nonce uint64, subIndex int) string {
	h := hmac.New(sha256.New, key)
	fmt.Fprintf(h, "%s:%d:%d", clientSeed, nonce, subIndex)
	return hex.EncodeToString(h.Sum(nil))
}

func drawFromDigest(hexDigest string) float64 {
	// 13 hex chars always fit in a uint64, the parse cannot fail.
	n, _ := strconv.ParseUint(hexDigest[:hexChars], 16, 64)
	return float64(n) / drawScale
}
