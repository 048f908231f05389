package referee

import (
	"context"
	"strings"

	"github.com/wfunc/foosref/logger"
	"github.com/wfunc/foosref/state"
)

// Image search terms per announcement.
const (
	imageNewGame   = "foosball"
	imageHardNew   = "nuke"
	imagePlayerOut = "chicken"
)

var helpText = strings.Join([]string{
	"*Foosball referee, available commands.*",
	"",
	"*--new* Begins a new game",
	"*--hard-new* Forces new game to reset current state",
	"*--y* Add yourself to the open game",
	"*--y @user* Adds @user to the open game",
	"*--n* Removes yourself from the current game",
	"*--n @user* Removes @user from current game",
	"*--status* Status of current game being organised",
	"*--help* This message!",
}, "\n")

func (r *Referee) newGame(ctx context.Context, gs *state.GameState, msg Message) {
	caller := r.users.Mention(msg.UserID)

	if gs.Open {
		r.say(msg.ChannelID, "%s, there is already an open game waiting for %d player(s), use --hard-new command to force a new game. Use --y to join the game.",
			caller, gs.Needed())
		return
	}

	gs.Restart(msg.UserID)
	r.store.Save(msg.ChannelID, gs)

	r.postImage(ctx, msg.ChannelID, imageNewGame)
	r.say(msg.ChannelID, "%s just started a new game. Message me \"--y\" to join the game.", caller)
}

func (r *Referee) hardNewGame(ctx context.Context, gs *state.GameState, msg Message) {
	gs.Restart(msg.UserID)
	r.store.Save(msg.ChannelID, gs)

	logger.Log.Infof("channel %s: game reset by %s", msg.ChannelID, msg.UserID)
	r.postImage(ctx, msg.ChannelID, imageHardNew)
	r.say(msg.ChannelID, "%s just forced a new game. Message \"--y\" to join the game.", r.users.Mention(msg.UserID))
}

func (r *Referee) status(gs *state.GameState, msg Message) {
	if !gs.Open {
		r.say(msg.ChannelID, "No current game. Last game began %s.", ago(gs.LastGameTimestamp, r.now()))
		return
	}

	names := make([]string, len(gs.Players))
	for i, p := range gs.Players {
		names[i] = r.users.DisplayName(p)
	}
	r.say(msg.ChannelID, "Game currently needs %d more player(s). Players in are: %s",
		gs.Needed(), strings.Join(names, ", "))
}

func (r *Referee) help(msg Message) {
	r.say(msg.ChannelID, "%s", helpText)
}

func (r *Referee) join(gs *state.GameState, msg Message, target string) {
	caller := msg.UserID

	if !gs.Open {
		r.say(msg.ChannelID, "%s there is no open game, use \"--new\" to begin a new game.", r.users.Mention(caller))
		return
	}

	if target != "" {
		// 替别人报名
		if !gs.HasPlayer(caller) {
			r.say(msg.ChannelID, "%s, you need to be in the game to add or remove players.", r.users.Mention(caller))
			return
		}
		if r.users.IsBot(target) {
			r.say(msg.ChannelID, "If only bots could play foosball :cry:")
			return
		}
	} else {
		target = caller
	}

	if gs.HasPlayer(target) {
		r.say(msg.ChannelID, "%s is already signed up for the current game.", r.users.Mention(target))
		return
	}

	if caller != target {
		r.say(msg.ChannelID, "%s has added %s to the game.", r.users.Mention(caller), r.users.Mention(target))
	}

	gs.Players = append(gs.Players, target)

	if gs.Full() {
		r.lock(gs, msg.ChannelID)
	} else {
		r.say(msg.ChannelID, "%s you are now in the game. Waiting on %d player(s).", r.users.Mention(target), gs.Needed())
	}
	r.store.Save(msg.ChannelID, gs)
}

// lock shuffles a full roster into teams, closes recruiting and arms the nag.
func (r *Referee) lock(gs *state.GameState, channelID string) {
	r.rand.Shuffle(len(gs.Players), func(i, j int) {
		gs.Players[i], gs.Players[j] = gs.Players[j], gs.Players[i]
	})
	gs.Open = false
	gs.LastGameTimestamp = r.now()

	r.armNag(channelID, gs.LastGameTimestamp)
	r.metrics.IncGamesLocked()
	logger.Log.Infof("channel %s: game locked with %v", channelID, gs.Players)

	home, away := Teams(gs.Players)
	r.say(channelID, ":soccer: :bell: Game On!  %s & %s - Vs - %s & %s",
		r.users.Mention(home[0]), r.users.Mention(home[1]),
		r.users.Mention(away[0]), r.users.Mention(away[1]))
}

// Teams splits a full roster: the first two players against the last two.
func Teams(players []string) (home, away [2]string) {
	copy(home[:], players[0:2])
	copy(away[:], players[2:4])
	return home, away
}

func (r *Referee) leave(ctx context.Context, gs *state.GameState, msg Message, target string) {
	// 即使比赛已经锁定，也允许退出
	if len(gs.Players) == 0 {
		return
	}

	caller := msg.UserID
	if target != "" {
		if !gs.HasPlayer(caller) {
			r.say(msg.ChannelID, "%s, you need to be in the game to add or remove players.", r.users.Mention(caller))
			return
		}
	} else {
		target = caller
	}

	if !gs.RemovePlayer(target) {
		r.say(msg.ChannelID, "%s, player %s is not in the current game.", r.users.Mention(caller), r.users.Mention(target))
		return
	}

	if caller != target {
		r.say(msg.ChannelID, "%s just removed %s from the game.", r.users.Mention(caller), r.users.Mention(target))
	}

	if len(gs.Players) > 0 {
		gs.Open = true
		r.postImage(ctx, msg.ChannelID, imagePlayerOut)
		r.say(msg.ChannelID, "%s , you are now REMOVED from the game.", r.users.Mention(target))
	} else {
		gs.Open = false
		r.say(msg.ChannelID, "%s , you are now REMOVED from the game. There are no other players, Game closed.", r.users.Mention(target))
	}
	r.store.Save(msg.ChannelID, gs)
}
