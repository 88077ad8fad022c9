package util

import "encoding/hex"

// BytesToHex converts bytes to a 0x-prefixed hex string.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
