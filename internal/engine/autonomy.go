package engine

import (
	"math"

	"operador/internal/domain"
)

// ReadyThreshold is the completed-mission count at which a user may leave the program.
const ReadyThreshold = 3

// Score derives the autonomy summary from mission statuses.
func Score(missions []domain.Mission) domain.Autonomy {
	completed := 0
	for _, m := range missions {
		if m.Status == domain.MissionCompleted {
			completed++
		}
	}
	pct := int(math.Round(float64(completed) / float64(domain.MissionCount) * 100))
	if pct > 100 {
		pct = 100
	}
	return domain.Autonomy{
		Percent:   pct,
		Ready:     completed >= ReadyThreshold,
		Completed: completed,
		Total:     domain.MissionCount,
	}
}
