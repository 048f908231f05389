package referee

import (
	"time"

	"github.com/wfunc/foosref/logger"
)

type nagTimer struct {
	id        int64
	channelID string // channel the nag posts to
}

func (r *Referee) nagKey(channelID string) string {
	if r.nagScope == NagScopeGlobal {
		return ""
	}
	return channelID
}

// armNag replaces the nag timer in channelID's scope with a new repeating
// one. The delay is random in [min, 2*min). Callers hold r.mu.
func (r *Referee) armNag(channelID string, lastGame time.Time) {
	key := r.nagKey(channelID)
	if nt, ok := r.nagTimers[key]; ok {
		r.timers.RemoveTimer(nt.id)
	}

	delay := r.nagMinDelay + time.Duration(r.rand.Float64()*float64(r.nagMinDelay))
	id := r.timers.AddTimer(delay, delay, func() {
		r.nag(channelID, lastGame)
	})
	r.nagTimers[key] = nagTimer{id: id, channelID: channelID}

	logger.Log.Infof("channel %s: keeping quiet for the next %s", channelID, delay.Round(time.Second))
}

// disarmNag cancels the nag posting to channelID. Under the global scope a
// timer armed by another channel is left alone. Callers hold r.mu.
func (r *Referee) disarmNag(channelID string) {
	key := r.nagKey(channelID)
	nt, ok := r.nagTimers[key]
	if !ok || nt.channelID != channelID {
		return
	}
	r.timers.RemoveTimer(nt.id)
	delete(r.nagTimers, key)
}

func (r *Referee) nag(channelID string, lastGame time.Time) {
	r.mu.Lock()
	tmpl := r.templates[r.rand.IntN(len(r.templates))]
	text := renderNag(tmpl, elapsed(lastGame, r.now()), r.rand.Float64())
	r.mu.Unlock()

	r.metrics.IncNagsSent()
	r.say(channelID, "%s", text)
}
