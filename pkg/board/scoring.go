package board

import (
	"math"
	"time"
)

// Stats is shared by the whole team; there is no per-player score.
type Stats struct {
	Score      int          `json:"score"`
	Lines      int          `json:"lines"`
	Level      int          `json:"level"`
	ComboChain int          `json:"comboChain"`
	LastClear  *ClearDetail `json:"lastClearDetail,omitempty"`
}

// ClearDetail breaks down the most recent scoring clear.
type ClearDetail struct {
	Lines            int     `json:"lines"`
	ComboBefore      int     `json:"comboBefore"`
	StreakMultiplier float64 `json:"streakMultiplier"`
	MultiLine        float64 `json:"multiLineMultiplier"`
	PerLine          int     `json:"perLineScore"`
	Total            int     `json:"totalGain"`
}

// Score computes the gain for clearing lines at the given combo chain.
func Score(lines, comboBefore int) ClearDetail {
	streak := 1 + 0.1*float64(comboBefore)
	multi := 1 + 0.2*float64(lines-1)
	perLine := int(math.Round(100 * streak * multi))
	return ClearDetail{
		Lines:            lines,
		ComboBefore:      comboBefore,
		StreakMultiplier: streak,
		MultiLine:        multi,
		PerLine:          perLine,
		Total:            perLine * lines,
	}
}

func (e *Engine) score(cleared int) {
	if cleared == 0 {
		e.stats.ComboChain = 0
		return
	}
	detail := Score(cleared, e.stats.ComboChain)
	e.stats.Score += detail.Total
	e.stats.Lines += cleared
	e.stats.Level = 1 + e.stats.Lines/10
	e.stats.ComboChain++
	e.stats.LastClear = &detail

	factor := math.Pow(e.cfg.SpeedFactor, float64(cleared))
	for _, p := range e.players {
		p.Interval = max(e.cfg.MinInterval, time.Duration(float64(p.Interval)*factor))
	}
}
