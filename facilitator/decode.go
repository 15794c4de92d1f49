package facilitator

import (
	"encoding/json"
	"fmt"

	"github.com/vitwit/x402-gate/types"
)

func decode(body []byte, v interface{}) error {
	if len(body) == 0 {
		return types.NewError(types.ErrCodeNetworkError, "facilitator returned an empty body", nil)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return types.NewError(types.ErrCodeNetworkError, fmt.Sprintf("malformed facilitator response: %v", err), err)
	}
	return nil
}
