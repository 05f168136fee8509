package syncer

import (
	"testing"
	"time"

	"github.com/localsync/tasksync/internal/model"
)

func metaAt(version int64, updatedAt time.Time) *model.Meta {
	return &model.Meta{Version: version, UpdatedAt: updatedAt}
}

func TestResolve(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	later := base.Add(time.Minute)

	tests := []struct {
		name   string
		local  *model.Meta
		remote *model.Meta
		want   Winner
	}{
		{"remote higher version", metaAt(1, later), metaAt(2, base), WinnerRemote},
		{"local higher version", metaAt(3, base), metaAt(2, later), WinnerLocal},
		{"equal version, remote newer", metaAt(2, base), metaAt(2, later), WinnerRemote},
		{"equal version, local newer", metaAt(2, later), metaAt(2, base), WinnerLocal},
		{"full tie keeps local", metaAt(2, base), metaAt(2, base), WinnerLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.local, tt.remote); got != tt.want {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWinnerString(t *testing.T) {
	if WinnerLocal.String() != "local" || WinnerRemote.String() != "remote" {
		t.Error("unexpected winner labels")
	}
}
