package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobKey(id int32) string {
	return fmt.Sprintf("job:%d", id)
}

func PreviewKey(id string) string {
	return fmt.Sprintf("preview:%s", id)
}

func RateLimitKey(owner uuid.UUID) string {
	return fmt.Sprintf("ratelimit:%s", owner)
}
