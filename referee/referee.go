// Package referee runs the per-channel foosball queue: it parses chat
// commands, updates the channel's game state and answers in the channel.
package referee

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/wfunc/foosref/logger"
	"github.com/wfunc/foosref/state"
	"github.com/wfunc/foosref/timer"
)

// NagScope decides which timers a newly armed nag replaces.
type NagScope string

const (
	// NagScopeChannel keeps one nag timer per channel.
	NagScopeChannel NagScope = "channel"
	// NagScopeGlobal keeps a single timer for the whole process, so a game
	// locking in one channel silences the nag of every other channel.
	NagScopeGlobal NagScope = "global"
)

const (
	DefaultNagMinDelay  = 45 * time.Minute
	DefaultImageTimeout = 10 * time.Second
)

// Message is an inbound chat line.
type Message struct {
	ChannelID string
	UserID    string
	Text      string
}

type Options struct {
	// Images decorates announcements; nil disables images.
	Images       ImageSearcher
	ImageTimeout time.Duration
	// Templates are nag messages; nil uses the built-in set.
	Templates   []string
	NagMinDelay time.Duration
	NagScope    NagScope
	// Timers schedules nags; nil creates a private manager.
	Timers  *timer.TimerManager
	Metrics Metrics
	Now     func() time.Time
	Rand    *rand.Rand
}

type Referee struct {
	store     state.Store
	messenger Messenger
	users     IdentityResolver
	images    ImageSearcher
	metrics   Metrics

	imageTimeout time.Duration
	templates    []string
	nagMinDelay  time.Duration
	nagScope     NagScope
	timers       *timer.TimerManager
	ownTimers    bool
	nagTimers    map[string]nagTimer // scope key -> armed nag

	now  func() time.Time
	rand *rand.Rand

	mu      sync.Mutex
	pending sync.WaitGroup // image posts in flight
}

func New(store state.Store, messenger Messenger, users IdentityResolver, opts Options) *Referee {
	r := &Referee{
		store:        store,
		messenger:    messenger,
		users:        users,
		images:       opts.Images,
		metrics:      opts.Metrics,
		imageTimeout: opts.ImageTimeout,
		templates:    opts.Templates,
		nagMinDelay:  opts.NagMinDelay,
		nagScope:     opts.NagScope,
		timers:       opts.Timers,
		nagTimers:    make(map[string]nagTimer),
		now:          opts.Now,
		rand:         opts.Rand,
	}

	if r.metrics == nil {
		r.metrics = nopMetrics{}
	}
	if r.imageTimeout <= 0 {
		r.imageTimeout = DefaultImageTimeout
	}
	if len(r.templates) == 0 {
		tmpls, err := LoadTemplates("")
		if err != nil {
			panic(err) // embedded file is broken
		}
		r.templates = tmpls
	}
	if r.nagMinDelay <= 0 {
		r.nagMinDelay = DefaultNagMinDelay
	}
	if r.nagScope == "" {
		r.nagScope = NagScopeChannel
	}
	if r.timers == nil {
		r.timers = timer.NewTimerManager()
		r.ownTimers = true
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.rand == nil {
		r.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return r
}

// Handle dispatches one chat line. It reports whether the text was a
// command; handlers never fail, problems are answered in the channel.
func (r *Referee) Handle(ctx context.Context, msg Message) bool {
	cmd, ok := ParseCommand(msg.Text)
	if !ok {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	logger.Log.Debugf("channel %s: %s from %s", msg.ChannelID, cmd.Type, msg.UserID)
	r.metrics.IncCommand(cmd.Type.String())

	gs := r.store.Get(msg.ChannelID)
	switch cmd.Type {
	case CmdHardNew:
		r.hardNewGame(ctx, gs, msg)
	case CmdNew:
		r.newGame(ctx, gs, msg)
	case CmdHelp:
		r.help(msg)
	case CmdStatus:
		r.status(gs, msg)
	case CmdJoin:
		r.join(gs, msg, cmd.Target)
	case CmdLeave:
		r.leave(ctx, gs, msg, cmd.Target)
	}
	return true
}

// Reset restores a channel to the default state and cancels the nag armed
// for it.
func (r *Referee) Reset(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store.Reset(channelID)
	r.disarmNag(channelID)
}

// Snapshot returns a copy of the channel's state. Unknown channels read as
// the default state and are not created.
func (r *Referee) Snapshot(channelID string) *state.GameState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gs, ok := r.store.Lookup(channelID); ok {
		return gs.Clone()
	}
	return state.NewGameState(r.now())
}

// Channels lists every channel the store has a state for.
func (r *Referee) Channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Channels()
}

// Close waits for in-flight image posts and cancels every nag timer.
func (r *Referee) Close() {
	r.pending.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, nt := range r.nagTimers {
		r.timers.RemoveTimer(nt.id)
		delete(r.nagTimers, key)
	}
	if r.ownTimers {
		r.timers.Stop()
	}
}

func (r *Referee) say(channelID, format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if err := r.messenger.SendMessage(text, channelID); err != nil {
		logger.Log.Warnf("send to channel %s failed: %v", channelID, err)
	}
}

// postImage searches for term in the background and posts the result.
// Failures are logged and dropped.
func (r *Referee) postImage(ctx context.Context, channelID, term string) {
	if r.images == nil {
		return
	}

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		defer func() {
			if p := recover(); p != nil {
				logger.Log.Errorf("image search %q panicked: %v", term, p)
			}
		}()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.imageTimeout)
		defer cancel()

		url, err := r.images.Search(ctx, term)
		if err != nil {
			r.metrics.IncImagesFailed()
			logger.Log.Debugf("no %q image for channel %s: %v", term, channelID, err)
			return
		}
		r.metrics.IncImagesPosted()
		r.say(channelID, "%s", url)
	}()
}
