package localstate

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// hashBlockSize is the block size Dropbox's content hasher uses: each 4 MiB
// block of the file is hashed independently, and the final hash is the
// SHA-256 of the concatenation of those per-block digests. This lets two
// files be compared incrementally without ever holding one in memory.
const hashBlockSize = 4 * 1024 * 1024

// DirHash is the sentinel hash value assigned to directories, which are
// never content-hashed.
const DirHash = "DIR"

// DropboxContentHash computes the Dropbox-compatible content hash of the
// file at absolutePath: SHA-256 over the concatenation of the SHA-256
// digests of each 4 MiB block of the file.
func DropboxContentHash(absolutePath string) (string, error) {
	f, err := os.Open(absolutePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	overall := sha256.New()
	buffer := make([]byte, hashBlockSize)
	for {
		n, readErr := io.ReadFull(f, buffer)
		if n > 0 {
			block := sha256.Sum256(buffer[:n])
			overall.Write(block[:])
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return "", readErr
		}
	}
	return hex.EncodeToString(overall.Sum(nil)), nil
}
