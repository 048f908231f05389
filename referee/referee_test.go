package referee

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/foosref/state"
	"github.com/wfunc/foosref/timer"
)

type sent struct {
	text    string
	channel string
}

// MockMessenger records every outbound message.
type MockMessenger struct {
	mu   sync.Mutex
	sent []sent
}

func (m *MockMessenger) SendMessage(text, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sent{text: text, channel: channelID})
	return nil
}

func (m *MockMessenger) texts(channelID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.sent {
		if s.channel == channelID {
			out = append(out, s.text)
		}
	}
	return out
}

func (m *MockMessenger) last(channelID string) string {
	texts := m.texts(channelID)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (m *MockMessenger) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// MockUsers resolves ids to "<@id>" mentions and "Name id" display names.
type MockUsers struct {
	bots map[string]bool
}

func (u *MockUsers) DisplayName(id string) string { return "Name " + id }
func (u *MockUsers) Mention(id string) string     { return "<@" + id + ">" }
func (u *MockUsers) IsBot(id string) bool         { return u.bots[id] }

// MockImages returns a fixed URL per term, or err.
type MockImages struct {
	mu    sync.Mutex
	terms []string
	err   error
}

func (m *MockImages) Search(ctx context.Context, term string) (string, error) {
	m.mu.Lock()
	m.terms = append(m.terms, term)
	m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	return "https://img.example/" + term + ".gif", nil
}

var testEpoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ref    *Referee
	store  *state.MemoryStore
	out    *MockMessenger
	images *MockImages
	now    time.Time
}

// newFixture builds a referee without image search so replies arrive in
// order; see newImageFixture.
func newFixture(t *testing.T) *fixture {
	return buildFixture(t, nil)
}

func newImageFixture(t *testing.T) *fixture {
	return buildFixture(t, &MockImages{})
}

func buildFixture(t *testing.T, images *MockImages) *fixture {
	t.Helper()
	f := &fixture{
		out:    &MockMessenger{},
		images: images,
		now:    testEpoch,
	}
	f.store = state.NewMemoryStoreWithClock(func() time.Time { return testEpoch })
	timers := timer.NewTimerManagerWithTick(time.Hour)
	t.Cleanup(timers.Stop)

	opts := Options{
		Timers: timers,
		Now:    func() time.Time { return f.now },
		Rand:   rand.New(rand.NewPCG(1, 2)),
	}
	if images != nil {
		opts.Images = images
	}
	f.ref = New(f.store, f.out, &MockUsers{bots: map[string]bool{"BOT": true}}, opts)
	t.Cleanup(f.ref.Close)
	return f
}

func (f *fixture) send(channel, user, text string) bool {
	return f.ref.Handle(context.Background(), Message{ChannelID: channel, UserID: user, Text: text})
}

func TestReferee_IgnoresNonCommands(t *testing.T) {
	f := newFixture(t)

	if f.send("C1", "A", "anyone up for lunch?") {
		t.Error("Plain chat should not be handled")
	}
	if len(f.out.texts("C1")) != 0 {
		t.Error("Plain chat should not produce replies")
	}
}

func TestReferee_FullGameScenario(t *testing.T) {
	f := newFixture(t)

	f.send("C1", "A", "--new")
	gs := f.store.Get("C1")
	if len(gs.Players) != 1 || gs.Players[0] != "A" || !gs.Open {
		t.Fatalf("Expected roster [A] open, got %+v", gs)
	}
	if !strings.Contains(f.out.last("C1"), "<@A> just started a new game") {
		t.Errorf("Expected new game announcement naming A, got %q", f.out.last("C1"))
	}

	f.send("C1", "B", "--y")
	if len(gs.Players) != 2 || !strings.Contains(f.out.last("C1"), "Waiting on 2 player(s)") {
		t.Errorf("Expected [A B] waiting on 2, got %v / %q", gs.Players, f.out.last("C1"))
	}

	f.send("C1", "C", "--y")
	if len(gs.Players) != 3 || !strings.Contains(f.out.last("C1"), "Waiting on 1 player(s)") {
		t.Errorf("Expected [A B C] waiting on 1, got %v / %q", gs.Players, f.out.last("C1"))
	}

	f.now = testEpoch.Add(time.Hour)
	f.send("C1", "D", "--y")
	if len(gs.Players) != 4 {
		t.Fatalf("Expected 4 players, got %v", gs.Players)
	}
	if gs.Open {
		t.Error("Expected the game to be locked")
	}
	if !gs.LastGameTimestamp.Equal(f.now) {
		t.Errorf("Expected lastGameTimestamp %v, got %v", f.now, gs.LastGameTimestamp)
	}
	if gs.Phase() != state.PhaseLocked {
		t.Errorf("Expected locked phase, got %s", gs.Phase())
	}

	announce := f.out.last("C1")
	if !strings.HasPrefix(announce, ":soccer: :bell: Game On!") {
		t.Fatalf("Expected Game On announcement, got %q", announce)
	}
	home, away := Teams(gs.Players)
	want := "<@" + home[0] + "> & <@" + home[1] + "> - Vs - <@" + away[0] + "> & <@" + away[1] + ">"
	if !strings.HasSuffix(announce, want) {
		t.Errorf("Expected teams %q in %q", want, announce)
	}
	for _, p := range []string{"A", "B", "C", "D"} {
		if !gs.HasPlayer(p) {
			t.Errorf("Expected %s to stay on the roster after shuffle", p)
		}
	}
	if len(f.ref.nagTimers) != 1 {
		t.Errorf("Expected the nag timer to be armed, got %d timers", len(f.ref.nagTimers))
	}

	// 锁定后 hard-new 直接重开
	f.send("C1", "E", "--hard-new")
	gs = f.store.Get("C1")
	if len(gs.Players) != 1 || gs.Players[0] != "E" || !gs.Open {
		t.Errorf("Expected roster [E] open after hard-new, got %+v", gs)
	}
	if !strings.Contains(f.out.last("C1"), "<@E> just forced a new game") {
		t.Errorf("Unexpected hard-new message %q", f.out.last("C1"))
	}
}

func TestReferee_NewOnOpenGameDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	f.send("C1", "A", "--new")
	f.send("C1", "B", "--y")

	f.send("C1", "C", "--new")

	gs := f.store.Get("C1")
	if len(gs.Players) != 2 || gs.Players[0] != "A" || gs.Players[1] != "B" {
		t.Errorf("Expected roster [A B] to be untouched, got %v", gs.Players)
	}
	want := "<@C>, there is already an open game waiting for 2 player(s), use --hard-new command to force a new game."
	if !strings.HasPrefix(f.out.last("C1"), want) {
		t.Errorf("Expected %q, got %q", want, f.out.last("C1"))
	}
}

func TestReferee_NewAfterLockedGameStartsOver(t *testing.T) {
	f := newFixture(t)
	lockGame(f, "C1")

	f.send("C1", "E", "--new")

	gs := f.store.Get("C1")
	if len(gs.Players) != 1 || gs.Players[0] != "E" || !gs.Open {
		t.Errorf("Expected roster [E] open, got %+v", gs)
	}
}

func TestReferee_HardNewAlwaysResets(t *testing.T) {
	for _, setup := range []struct {
		name string
		run  func(f *fixture)
	}{
		{"empty", func(f *fixture) {}},
		{"recruiting", func(f *fixture) { f.send("C1", "A", "--new"); f.send("C1", "B", "--y") }},
		{"locked", func(f *fixture) { lockGame(f, "C1") }},
	} {
		t.Run(setup.name, func(t *testing.T) {
			f := newFixture(t)
			setup.run(f)

			f.send("C1", "Z", "--hard-new")

			gs := f.store.Get("C1")
			if len(gs.Players) != 1 || gs.Players[0] != "Z" || !gs.Open {
				t.Errorf("Expected roster [Z] open, got %+v", gs)
			}
		})
	}
}

func TestReferee_JoinWithoutOpenGame(t *testing.T) {
	f := newFixture(t)

	f.send("C1", "A", "--y")

	if gs := f.store.Get("C1"); len(gs.Players) != 0 {
		t.Errorf("Expected empty roster, got %v", gs.Players)
	}
	if !strings.Contains(f.out.last("C1"), "there is no open game") {
		t.Errorf("Unexpected reply %q", f.out.last("C1"))
	}
}

func TestReferee_JoinIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.send("C1", "A", "--new")

	f.send("C1", "A", "--y")
	f.send("C1", "B", "--y")
	f.send("C1", "B", "--y")
	f.send("C1", "A", "--y <@B>")

	gs := f.store.Get("C1")
	if len(gs.Players) != 2 {
		t.Errorf("Expected no duplicates, got %v", gs.Players)
	}
	if !strings.Contains(f.out.last("C1"), "<@B> is already signed up") {
		t.Errorf("Unexpected reply %q", f.out.last("C1"))
	}
}

func TestReferee_JoinOnBehalfOfAnotherUser(t *testing.T) {
	f := newFixture(t)
	f.send("C1", "A", "--new")

	f.send("C1", "A", "--y <@B>")

	gs := f.store.Get("C1")
	if !gs.HasPlayer("B") {
		t.Fatalf("Expected B to be added, got %v", gs.Players)
	}
	texts := f.out.texts("C1")
	if !contains(texts, "<@A> has added <@B> to the game.") {
		t.Errorf("Expected an added announcement, got %v", texts)
	}
}

func TestReferee_JoinOtherRequiresCallerInGame(t *testing.T) {
	f := newFixture(t)
	f.send("C1", "A", "--new")

	f.send("C1", "X", "--y <@B>")

	if gs := f.store.Get("C1"); gs.HasPlayer("B") {
		t.Error("Outsiders should not be able to add players")
	}
	if !strings.Contains(f.out.last("C1"), "<@X>, you need to be in the game") {
		t.Errorf("Unexpected reply %q", f.out.last("C1"))
	}
}

func TestReferee_JoinRejectsBots(t *testing.T) {
	f := newFixture(t)
	f.send("C1", "A", "--new")

	f.send("C1", "A", "--y <@BOT>")

	if gs := f.store.Get("C1"); gs.HasPlayer("BOT") {
		t.Error("Bots should never join")
	}
	if !strings.HasPrefix(f.out.last("C1"), "If only bots could play foosball") {
		t.Errorf("Unexpected reply %q", f.out.last("C1"))
	}
}

func TestReferee_RosterNeverExceedsFour(t *testing.T) {
	f := newFixture(t)
	f.send("C1", "A", "--new")
	for _, p := range []string{"B", "C", "D", "E", "F"} {
		f.send("C1", p, "--y")
		gs := f.store.Get("C1")
		if len(gs.Players) > state.MaxPlayers {
			t.Fatalf("Roster grew past %d: %v", state.MaxPlayers, gs.Players)
		}
		if gs.Full() && gs.Open {
			t.Fatal("A full roster must be locked")
		}
	}
}

func TestReferee_LeaveLastPlayerClosesGame(t *testing.T) {
	f := newFixture(t)
	f.send("C1", "D", "--new")

	f.send("C1", "D", "--n")

	gs := f.store.Get("C1")
	if len(gs.Players) != 0 || gs.Open {
		t.Errorf("Expected empty closed state, got %+v", gs)
	}
	if !strings.HasSuffix(f.out.last("C1"), "There are no other players, Game closed.") {
		t.Errorf("Unexpected reply %q", f.out.last("C1"))
	}
}

func TestReferee_LeaveReopensLockedGame(t *testing.T) {
	f := newFixture(t)
	lockGame(f, "C1")

	f.send("C1", "B", "--n")

	gs := f.store.Get("C1")
	if len(gs.Players) != 3 || gs.HasPlayer("B") {
		t.Fatalf("Expected B removed, got %v", gs.Players)
	}
	if !gs.Open {
		t.Error("A partial roster must be open again")
	}
	if !strings.HasPrefix(f.out.last("C1"), "<@B> , you are now REMOVED from the game.") {
		t.Errorf("Unexpected reply %q", f.out.last("C1"))
	}
}

func TestReferee_ForcedRemoval(t *testing.T) {
	f := newFixture(t)
	lockGame(f, "C1")
	f.out.clear()

	f.send("C1", "A", "--n <@C>")

	gs := f.store.Get("C1")
	if gs.HasPlayer("C") || !gs.Open {
		t.Errorf("Expected C removed and game reopened, got %+v", gs)
	}
	if !contains(f.out.texts("C1"), "<@A> just removed <@C> from the game.") {
		t.Errorf("Expected removal announcement, got %v", f.out.texts("C1"))
	}
}

func TestReferee_ForcedRemovalRequiresCallerInGame(t *testing.T) {
	f := newFixture(t)
	lockGame(f, "C1")

	f.send("C1", "X", "--n <@C>")

	if gs := f.store.Get("C1"); !gs.HasPlayer("C") {
		t.Error("Outsiders should not be able to remove players")
	}
}

func TestReferee_LeaveAbsentPlayer(t *testing.T) {
	f := newFixture(t)
	f.send("C1", "A", "--new")
	f.send("C1", "B", "--y")

	f.send("C1", "A", "--n <@Q>")

	gs := f.store.Get("C1")
	if len(gs.Players) != 2 || !gs.Open {
		t.Errorf("Expected roster untouched, got %+v", gs)
	}
	if f.out.last("C1") != "<@A>, player <@Q> is not in the current game." {
		t.Errorf("Unexpected reply %q", f.out.last("C1"))
	}
}

func TestReferee_LeaveOnEmptyRosterIsSilent(t *testing.T) {
	f := newFixture(t)

	if !f.send("C1", "A", "--n") {
		t.Fatal("--n should be recognised")
	}
	if len(f.out.texts("C1")) != 0 {
		t.Errorf("Expected no reply, got %v", f.out.texts("C1"))
	}
}

func TestReferee_StatusOnFreshChannel(t *testing.T) {
	f := newFixture(t)

	f.send("C1", "A", "--status")

	want := "No current game. Last game began a few seconds ago."
	if f.out.last("C1") != want {
		t.Errorf("Expected %q, got %q", want, f.out.last("C1"))
	}
}

func TestReferee_StatusWithoutGame(t *testing.T) {
	f := newFixture(t)
	f.now = testEpoch.Add(3 * time.Hour)

	f.send("C1", "A", "--status")

	want := "No current game. Last game began 3 hours ago."
	if f.out.last("C1") != want {
		t.Errorf("Expected %q, got %q", want, f.out.last("C1"))
	}
}

func TestReferee_StatusListsPlayers(t *testing.T) {
	f := newFixture(t)
	f.send("C1", "A", "--new")
	f.send("C1", "B", "--y")

	f.send("C1", "B", "what's the --status")

	want := "Game currently needs 2 more player(s). Players in are: Name A, Name B"
	if f.out.last("C1") != want {
		t.Errorf("Expected %q, got %q", want, f.out.last("C1"))
	}
}

func TestReferee_Help(t *testing.T) {
	f := newFixture(t)

	f.send("C1", "A", "--help")

	reply := f.out.last("C1")
	for _, cmd := range []string{"--new", "--hard-new", "--y", "--n", "--status", "--help"} {
		if !strings.Contains(reply, "*"+cmd) {
			t.Errorf("Expected help to mention %s", cmd)
		}
	}
}

func TestReferee_ChannelsAreIsolated(t *testing.T) {
	f := newFixture(t)
	f.send("C1", "A", "--new")

	f.send("C2", "B", "--y")

	if gs := f.store.Get("C2"); len(gs.Players) != 0 {
		t.Errorf("C2 should have no players, got %v", gs.Players)
	}
	if gs := f.store.Get("C1"); len(gs.Players) != 1 {
		t.Errorf("C1 should be untouched, got %v", gs.Players)
	}
}

func TestReferee_PostsImages(t *testing.T) {
	f := newImageFixture(t)
	f.send("C1", "A", "--new")
	f.send("C1", "B", "--y")
	f.send("C1", "B", "--n")
	f.send("C1", "Z", "--hard-new")
	f.ref.Close()

	texts := f.out.texts("C1")
	for _, term := range []string{"foosball", "chicken", "nuke"} {
		if !contains(texts, "https://img.example/"+term+".gif") {
			t.Errorf("Expected %s image in %v", term, texts)
		}
	}
}

func TestReferee_ImageFailureIsSwallowed(t *testing.T) {
	f := newImageFixture(t)
	f.images.err = errors.New("no api key")

	f.send("C1", "A", "--new")
	f.ref.Close()

	texts := f.out.texts("C1")
	if len(texts) != 1 || !strings.Contains(texts[0], "just started a new game") {
		t.Errorf("Expected only the text announcement, got %v", texts)
	}
}

func TestReferee_ResetAndSnapshot(t *testing.T) {
	f := newFixture(t)
	f.send("C1", "A", "--new")

	snap := f.ref.Snapshot("C1")
	snap.Players = append(snap.Players, "hacked")
	if f.store.Get("C1").HasPlayer("hacked") {
		t.Error("Snapshot should be a copy")
	}

	f.ref.Reset("C1")
	if gs := f.ref.Snapshot("C1"); len(gs.Players) != 0 || gs.Open {
		t.Errorf("Expected default state after reset, got %+v", gs)
	}
}

func TestReferee_SnapshotDoesNotCreateChannels(t *testing.T) {
	f := newFixture(t)

	gs := f.ref.Snapshot("C404")
	if len(gs.Players) != 0 || gs.Open {
		t.Errorf("Expected default state, got %+v", gs)
	}
	if chans := f.ref.Channels(); len(chans) != 0 {
		t.Errorf("Expected no channels after a read, got %v", chans)
	}
}

func TestReferee_TeamSplitIsUnbiased(t *testing.T) {
	store := state.NewMemoryStore()
	ref := New(store, &MockMessenger{}, &MockUsers{}, Options{
		Timers: timer.NewTimerManagerWithTick(time.Hour),
	})
	defer ref.Close()

	const trials = 4800
	counts := make(map[string]int)
	for i := 0; i < trials; i++ {
		ref.Reset("C1")
		ref.Handle(context.Background(), Message{ChannelID: "C1", UserID: "A", Text: "--new"})
		for _, p := range []string{"B", "C", "D"} {
			ref.Handle(context.Background(), Message{ChannelID: "C1", UserID: p, Text: "--y"})
		}
		gs := store.Get("C1")
		if len(gs.Players) != 4 || gs.Open {
			t.Fatalf("Expected a locked game, got %+v", gs)
		}
		counts[strings.Join(gs.Players, "")]++
	}

	if len(counts) != 24 {
		t.Fatalf("Expected all 24 permutations, saw %d", len(counts))
	}
	expected := trials / 24
	for perm, n := range counts {
		if n < expected/2 || n > expected*3/2 {
			t.Errorf("Permutation %s seen %d times, expected about %d", perm, n, expected)
		}
	}
}

// lockGame fills channel with players A-D.
func lockGame(f *fixture, channel string) {
	f.send(channel, "A", "--new")
	for _, p := range []string{"B", "C", "D"} {
		f.send(channel, p, "--y")
	}
}

func contains(texts []string, want string) bool {
	for _, t := range texts {
		if t == want {
			return true
		}
	}
	return false
}
