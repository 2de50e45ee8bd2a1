package experiment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const runStampLayout = "06_01_02_1504"

// RunName is "<yy_mm_dd_HHMM>_<experiment>_<seed>_<id>" where id is the
// first eight hex digits of a random UUID.
func RunName(now time.Time, experiment string, seed int64) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%d_%s", now.Format(runStampLayout), sanitize(experiment), seed, id)
}

// sanitize keeps names usable as directory components.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, name)
}
