package relay

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/tabremote/relay-server/internal/config"
)

func generatePairCode() (string, error) {
	chars := []byte(config.PairCodeAlphabet)
	max := big.NewInt(int64(len(chars)))

	code := make([]byte, config.PairCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		code[i] = chars[n.Int64()]
	}
	return string(code), nil
}

// newPairCode returns a code not currently outstanding. Callers hold r.mu.
func (r *Relay) newPairCode() (string, error) {
	for attempts := 0; attempts < config.PairCodeMaxGenAttempts; attempts++ {
		code, err := generatePairCode()
		if err != nil {
			return "", err
		}
		if _, taken := r.codes.FindByCode(code); !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free pair code after %d attempts", config.PairCodeMaxGenAttempts)
}
