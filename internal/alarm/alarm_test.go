package alarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/doismellburning/skyrouter/internal/packet"
)

func TestFireIsRateLimited(t *testing.T) {
	var fired int
	e := New(func(packet.Packet) { fired++ })

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e.SetClock(func() time.Time { return now })
	e.SetWindow(KindRxTimeout, time.Second)

	assert.True(t, e.Fire(KindRxTimeout, "stall"))
	assert.False(t, e.Fire(KindRxTimeout, "stall again"), "second call within window is suppressed")

	now = now.Add(2 * time.Second)
	assert.True(t, e.Fire(KindRxTimeout, "stall once more"), "fires again once the window elapses")

	assert.Equal(t, 2, fired)
}

func TestResetClearsRateLimit(t *testing.T) {
	var fired int
	e := New(func(packet.Packet) { fired++ })
	now := time.Now()
	e.SetClock(func() time.Time { return now })
	e.SetWindow(KindLinkToControllerLost, time.Hour)

	assert.True(t, e.Fire(KindLinkToControllerLost, "lost"))
	e.Reset(KindLinkToControllerLost)
	assert.True(t, e.Fire(KindLinkToControllerLost, "lost again"), "reset allows immediate re-fire")
	assert.Equal(t, 2, fired)
}
