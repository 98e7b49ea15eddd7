package dialogue

import (
	"time"
	"unicode/utf8"

	"github.com/pricewatch/intake-core/internal/intake/model"
)

// pace assigns typing delays: a base delay plus a per-character delay,
// capped at MaxDelay. Order is never changed.
func pace(cfg model.DialogueConfig, prompts []model.ScheduledPrompt) []model.ScheduledPrompt {
	out := make([]model.ScheduledPrompt, len(prompts))
	for i, p := range prompts {
		d := cfg.TypingDelay + time.Duration(utf8.RuneCountInString(p.Content))*cfg.PerCharDelay
		if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
			d = cfg.MaxDelay
		}
		if d < 0 {
			d = 0
		}
		p.Delay = d
		out[i] = p
	}
	return out
}
