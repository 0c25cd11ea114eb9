package notify

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// decodeMessage parses a raw frame as JSON. The result is passed to handlers
// as-is: objects are map[string]any, numbers float64.
func decodeMessage(raw []byte) (any, error) {
	var msg any
	if err := sonic.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return msg, nil
}
