// internal/comm/hex.go
package comm

import "fmt"

// HexString renders a buffer as space separated upper case hex pairs
func HexString(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return fmt.Sprintf("% X", data)
}
