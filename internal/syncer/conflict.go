package syncer

import "github.com/localsync/tasksync/internal/model"

// Winner identifies which copy of a record survives a conflict.
type Winner int

const (
	WinnerLocal Winner = iota
	WinnerRemote
)

func (w Winner) String() string {
	if w == WinnerRemote {
		return "remote"
	}
	return "local"
}

// Resolve applies last-write-wins between the local and remote copies of a
// record. The higher version wins; equal versions fall back to the later
// updated_at; a full tie keeps the local copy.
func Resolve(local, remote *model.Meta) Winner {
	if remote.Version != local.Version {
		if remote.Version > local.Version {
			return WinnerRemote
		}
		return WinnerLocal
	}
	if remote.UpdatedAt.After(local.UpdatedAt) {
		return WinnerRemote
	}
	return WinnerLocal
}
