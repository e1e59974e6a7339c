package agent

import (
	"fmt"
	"sync"
)

// deviceUser is one user slot on the device: a display name plus up to
// ten finger templates.
type deviceUser struct {
	name      string
	templates map[int][]byte
}

// Controller is the in-memory template bank of an emulated
// access-control device. It mirrors what the hardware SDK exposes:
// user slots keyed by the device-local numeric id, each holding per
// finger templates.
type Controller struct {
	mu    sync.Mutex
	users map[int]*deviceUser
}

func NewController() *Controller {
	return &Controller{users: make(map[int]*deviceUser)}
}

// Enroll writes one finger's template for a device user, creating the
// user slot on first use. Re-enrolling a finger overwrites it.
func (c *Controller) Enroll(deviceUserID int, name string, fingerIndex int, template []byte) error {
	if deviceUserID <= 0 {
		return fmt.Errorf("invalid device user id %d", deviceUserID)
	}
	if fingerIndex < 0 || fingerIndex > 9 {
		return fmt.Errorf("invalid finger index %d", fingerIndex)
	}
	if len(template) == 0 {
		return fmt.Errorf("empty template")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	u, ok := c.users[deviceUserID]
	if !ok {
		u = &deviceUser{templates: make(map[int][]byte)}
		c.users[deviceUserID] = u
	}
	if name != "" {
		u.name = name
	}
	u.templates[fingerIndex] = template
	return nil
}

// Delete removes one finger's template, or the whole user slot when
// fingerIndex is nil. Returns how many templates were removed and
// whether the user record itself is gone.
func (c *Controller) Delete(deviceUserID int, fingerIndex *int) (deleted int, userDeleted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, ok := c.users[deviceUserID]
	if !ok {
		return 0, false
	}

	if fingerIndex != nil {
		if _, ok := u.templates[*fingerIndex]; ok {
			delete(u.templates, *fingerIndex)
			deleted = 1
		}
		if len(u.templates) == 0 {
			delete(c.users, deviceUserID)
			userDeleted = true
		}
		return deleted, userDeleted
	}

	deleted = len(u.templates)
	delete(c.users, deviceUserID)
	return deleted, true
}

// TemplateCount reports how many templates a user slot holds.
func (c *Controller) TemplateCount(deviceUserID int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.users[deviceUserID]; ok {
		return len(u.templates)
	}
	return 0
}

// UserCount reports how many user slots exist.
func (c *Controller) UserCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.users)
}
