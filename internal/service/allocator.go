package service

import (
	"fmt"
	"time"

	"github.com/playrow/partyroom-backend/internal/apperror"
	"github.com/playrow/partyroom-backend/internal/entity"
)

const (
	// evictAfter is how long a non-host seat may sit idle before any
	// client's fetch reclaims it.
	evictAfter = 5 * time.Minute

	// activityDebounce bounds write volume from activity refreshes.
	activityDebounce = time.Second
)

// assignSlot maps an arriving session to a seat: a seat it already owns
// (reconnect) wins, then the first fully empty seat from 2 upward. The
// host always holds seat 1, claimed at room creation.
func assignSlot(room *entity.Room, sessionID string) (int, error) {
	if seat := room.SlotBySession(sessionID); seat > 0 {
		return seat, nil
	}

	for i := 2; i <= len(room.Slots); i++ {
		slot := room.Slot(i)
		if slot.Name == "" && slot.SessionID == "" {
			return i, nil
		}
	}

	return 0, apperror.ErrRoomFull
}

// sweep reclaims non-host seats idle past the threshold. It runs inside
// the same guarded write as whatever triggered it, and is idempotent:
// a seat already cleared is skipped, so concurrent sweeps produce one
// log entry and no further change.
func sweep(room *entity.Room, now time.Time) bool {
	changed := false

	for i := 2; i <= len(room.Slots); i++ {
		slot := room.Slot(i)
		if !slot.IsOccupied() {
			continue
		}

		idle := now.Sub(lastSeen(room, slot))
		if idle <= evictAfter {
			continue
		}

		room.Log = append(room.Log, fmt.Sprintf("%s evicted from slot %d after %d minutes idle", slot.Name, i, int(idle.Minutes())))
		slot.Clear()
		changed = true

		if room.Turn == i {
			room.Turn = room.NextOccupiedFrom(i)
		}
	}

	return changed
}

// sweepDue reports whether sweep would change anything, so plain reads can
// skip the write entirely.
func sweepDue(room *entity.Room, now time.Time) bool {
	for i := 2; i <= len(room.Slots); i++ {
		slot := room.Slot(i)
		if slot.IsOccupied() && now.Sub(lastSeen(room, slot)) > evictAfter {
			return true
		}
	}

	return false
}

func lastSeen(room *entity.Room, slot *entity.Slot) time.Time {
	if slot.LastActivityAt.IsZero() {
		return room.CreatedAt
	}
	return slot.LastActivityAt
}

// touch refreshes a seat's activity timestamp, at most once per debounce
// interval. Reports whether the row actually changed.
func touch(slot *entity.Slot, now time.Time) bool {
	if now.Sub(slot.LastActivityAt) < activityDebounce {
		return false
	}

	slot.LastActivityAt = now

	return true
}
