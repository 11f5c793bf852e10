package lockmgr

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// lockValue is the json value stored for a held lock
type lockValue struct {
	Owner string `json:"owner"`
	// Expires is the unix time in milliseconds after which the lock may be taken over, 0 for never
	Expires int64 `json:"expires,omitempty"`
}

// generateOwnerID creates a new unique owner ID
func generateOwnerID() string {
	return uuid.NewString()
}

func newLockValue(owner string, timeout time.Duration, now time.Time) (json.RawMessage, error) {
	v := lockValue{Owner: owner}
	if timeout > 0 {
		v.Expires = now.Add(timeout).UnixMilli()
	}
	return json.Marshal(v)
}

func parseLockValue(raw json.RawMessage) (lockValue, error) {
	var v lockValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("invalid lock value: %w", err)
	}
	return v, nil
}

func (v lockValue) expired(now time.Time) bool {
	return v.Expires != 0 && now.UnixMilli() >= v.Expires
}
