package cryptox

import "golang.org/x/crypto/argon2"

// argon2id parameters: 1 pass, 64 MiB, 4 lanes, 32-byte output. Changing
// them invalidates every key derived on existing installs.
func argonID(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
}
