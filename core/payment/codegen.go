package payment

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

const (
	codeAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLen       = 8
	codeGroupSize = 2
)

// CodeGenerator produces candidate unlock codes.
type CodeGenerator interface {
	// Generate returns a new random code formatted as XX-XX-XX-XX.
	Generate() (string, error)
}

type randomCodeGenerator struct{}

var _ CodeGenerator = (*randomCodeGenerator)(nil)

func NewCodeGenerator() CodeGenerator {
	return &randomCodeGenerator{}
}

// Generate draws codeLen symbols uniformly from codeAlphabet (crypto/rand)
// and groups them with "-" for readability. The code space is 36^8 ≈ 2.8e12;
// collision handling is the issuer's job, not this generator's.
func (g *randomCodeGenerator) Generate() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))

	var sb strings.Builder
	for i := 0; i < codeLen; i++ {
		if i > 0 && i%codeGroupSize == 0 {
			sb.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errors.Wrap(err, "reading random bytes")
		}
		sb.WriteByte(codeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// HashCode returns the hex-encoded SHA-256 digest of the code's UTF-8 bytes.
// It is the sole lookup and uniqueness key for stored unlock codes; redemption
// must compare hashes, never plaintext.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
