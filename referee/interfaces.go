package referee

import "context"

// Messenger delivers text to a chat channel. Delivery is best effort.
type Messenger interface {
	SendMessage(text, channelID string) error
}

// IdentityResolver answers questions about users the transport knows.
type IdentityResolver interface {
	DisplayName(userID string) string
	Mention(userID string) string
	IsBot(userID string) bool
}

// ImageSearcher finds an image URL for a search term.
type ImageSearcher interface {
	Search(ctx context.Context, term string) (string, error)
}

// Metrics is the subset of monitor.Monitor the referee reports to.
type Metrics interface {
	IncCommand(command string)
	IncGamesLocked()
	IncImagesPosted()
	IncImagesFailed()
	IncNagsSent()
}

type nopMetrics struct{}

func (nopMetrics) IncCommand(string) {}
func (nopMetrics) IncGamesLocked()   {}
func (nopMetrics) IncImagesPosted()  {}
func (nopMetrics) IncImagesFailed()  {}
func (nopMetrics) IncNagsSent()      {}
