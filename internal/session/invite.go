package session

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/lox/bingoroom/internal/room"
)

// ParseInvite extracts a room id from either a bare id or an invite link
// carrying it in the "room" query parameter.
func ParseInvite(invite string) (string, error) {
	invite = strings.TrimSpace(invite)
	if invite == "" {
		return "", room.ErrRoomNotFound
	}
	if !strings.Contains(invite, "?") && !strings.Contains(invite, "://") {
		return invite, nil
	}

	u, err := url.Parse(invite)
	if err != nil {
		return "", fmt.Errorf("%w: bad invite link: %v", room.ErrRoomNotFound, err)
	}
	id := strings.TrimSpace(u.Query().Get("room"))
	if id == "" {
		return "", fmt.Errorf("%w: invite link has no room", room.ErrRoomNotFound)
	}
	return id, nil
}

// InviteLink builds a link that ParseInvite accepts.
func InviteLink(base, roomID string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return roomID
	}
	if u.Path == "" {
		u.Path = "/"
	}
	q := u.Query()
	q.Set("room", roomID)
	u.RawQuery = q.Encode()
	return u.String()
}
