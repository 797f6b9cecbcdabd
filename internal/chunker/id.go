package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/google/uuid"
)

// idNamespace is the UUIDv5 namespace for chunk IDs.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/fyrsmithlabs/ragd/chunk"))

// ChunkID derives the stable identifier of a chunk:
//
//	name = source + 0x1F + decimal(index) + 0x1F + lowercase hex(sha256(text))
//	id   = UUIDv5(UUIDv5(NameSpaceURL, "https://github.com/fyrsmithlabs/ragd/chunk"), name)
//
// The result is a canonical hyphenated UUID, accepted as a Qdrant point ID.
// Identical (source, index, text) always map to the same ID, so re-ingesting
// a document overwrites its points instead of duplicating them.
func ChunkID(source string, index int, text string) string {
	sum := sha256.Sum256([]byte(text))
	name := source + "\x1f" + strconv.Itoa(index) + "\x1f" + hex.EncodeToString(sum[:])
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}
