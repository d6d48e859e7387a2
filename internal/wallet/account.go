package wallet

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/crc32"
)

// AccountIdentifier derives the ledger account for a principal: CRC32
// checksum over SHA-224 of the domain-separated principal with the default
// (all-zero) subaccount, hex encoded. Deterministic, so the service address
// never changes across restarts.
func AccountIdentifier(principal string) string {
	h := sha256.New224()
	h.Write([]byte("\x0aaccount-id"))
	h.Write([]byte(principal))
	h.Write(make([]byte, 32)) // default subaccount
	sum := h.Sum(nil)

	crc := crc32.ChecksumIEEE(sum)
	out := make([]byte, 0, 32)
	out = append(out, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
	out = append(out, sum...)
	return hex.EncodeToString(out)
}
