package keyvault

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/kith-app/kith/internal/client/repositories/metadata"
	"github.com/kith-app/kith/internal/common"
)

// RecoveryKeyCount is the size of the recovery key set generated at
// registration.
const RecoveryKeyCount = 12

// RecoveryKeyThreshold is the number of positional matches required for a
// recovery attempt to succeed.
const RecoveryKeyThreshold = 8

const wordsPerPhrase = 3

// GenerateRecoveryKeys produces the account's recovery key set: twelve
// mnemonic phrases generated once at registration. Only salted-free SHA-256
// hashes of the normalized phrases are persisted; the phrases themselves are
// shown to the user exactly once. Regenerating replaces the old set.
func (v *Vault) GenerateRecoveryKeys(ctx context.Context) ([]string, error) {
	phrases := make([]string, RecoveryKeyCount)
	hashes := make([][]byte, RecoveryKeyCount)

	for i := range phrases {
		words := make([]string, wordsPerPhrase)
		for j := range words {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(wordList))))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
			}
			words[j] = wordList[n.Int64()]
		}
		phrases[i] = strings.Join(words, "-")
		hashes[i] = hashPhrase(phrases[i])
	}

	blob, err := json.Marshal(hashes)
	if err != nil {
		return nil, err
	}
	if err := v.meta.Set(ctx, metadata.KeyRecoveryHashes, blob); err != nil {
		return nil, err
	}
	return phrases, nil
}

// VerifyRecoveryKeys checks a candidate set against the stored recovery
// hashes. It returns true iff at least RecoveryKeyThreshold of the twelve
// candidates match at their positions, after trimming and lowercasing.
func (v *Vault) VerifyRecoveryKeys(ctx context.Context, candidate []string) (bool, error) {
	if len(candidate) != RecoveryKeyCount {
		return false, nil
	}

	blob, err := v.meta.Get(ctx, metadata.KeyRecoveryHashes)
	if err != nil {
		return false, err
	}
	if blob == nil {
		return false, common.ErrNoKeyMaterial
	}

	var hashes [][]byte
	if err := json.Unmarshal(blob, &hashes); err != nil {
		return false, err
	}
	if len(hashes) != RecoveryKeyCount {
		return false, fmt.Errorf("%w: malformed recovery hash set", common.ErrInternal)
	}

	matches := 0
	for i, phrase := range candidate {
		if bytes.Equal(hashPhrase(phrase), hashes[i]) {
			matches++
		}
	}
	return matches >= RecoveryKeyThreshold, nil
}

func normalizePhrase(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
