package quote

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateNumber returns a globally unique, human readable quote number
// of the form DEV-YYYY-XXXXXXXX.
func GenerateNumber(now time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("DEV-%d-%s", now.Year(), strings.ToUpper(id[:8]))
}
