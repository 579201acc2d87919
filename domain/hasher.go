package domain

// Hasher fingerprints uploaded documents so a session does not send the same
// file twice.
type Hasher interface {
	Hash(data []byte) string
}
