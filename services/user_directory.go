package services

import (
	"fmt"
	"sync"
)

// User is what the chat transport knows about a participant.
type User struct {
	ID       string
	Name     string
	RealName string
	IsBot    bool
}

// UserDirectory 用户目录，实现 referee.IdentityResolver
type UserDirectory struct {
	users map[string]User
	mutex sync.RWMutex
}

func NewUserDirectory() *UserDirectory {
	return &UserDirectory{
		users: make(map[string]User),
	}
}

// Register adds or replaces a user.
func (d *UserDirectory) Register(u User) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.users[u.ID] = u
}

func (d *UserDirectory) Lookup(id string) (User, bool) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	u, ok := d.users[id]
	return u, ok
}

// DisplayName prefers the real name, then the handle, then the raw id.
func (d *UserDirectory) DisplayName(id string) string {
	u, ok := d.Lookup(id)
	switch {
	case !ok:
		return id
	case u.RealName != "":
		return u.RealName
	case u.Name != "":
		return u.Name
	default:
		return id
	}
}

// Mention formats a chat reference like <@U123|bob>.
func (d *UserDirectory) Mention(id string) string {
	u, ok := d.Lookup(id)
	if !ok || u.Name == "" {
		return fmt.Sprintf("<@%s>", id)
	}
	return fmt.Sprintf("<@%s|%s>", id, u.Name)
}

func (d *UserDirectory) IsBot(id string) bool {
	u, ok := d.Lookup(id)
	return ok && u.IsBot
}
