// Package tuning collects the fixed resource limits and pacing constants
// that every other package reads instead of hard-coding a magic number.
package tuning

import "time"

const (
	// QueueBuffer bounds the number of in-flight commands any actor's
	// request channel accepts before senders block.
	QueueBuffer = 128

	// BroadcastBuffer bounds the per-subscriber buffer used by the
	// lobby's match-update fan-out and the play coordinator's spectator
	// fan-out. A subscriber that falls this far behind is dropped rather
	// than slowing down the actor that owns the data.
	BroadcastBuffer = 512

	// PipeBuffer bounds each in-process duplex byte pipe handed to a
	// player connection or bot.
	PipeBuffer = 1 << 16

	// ChunkSize bounds a single read/write performed against a pipe by
	// the bridging code in the client session and play coordinator.
	ChunkSize = 1 << 20

	// MaxPlayers is the largest player count the lobby accepts in a
	// GameNew request.
	MaxPlayers = 100

	// MaxGameInstances is the largest number of live matches (waiting or
	// running) the lobby tolerates before it refuses GameNew.
	MaxGameInstances = 1000

	// MinTimeout and MaxTimeout bound the per-match move timeout
	// (seconds) a client may request.
	MinTimeout = 0.1
	MaxTimeout = 600.0

	// InstanceLifetime is the number of seconds a waiting match may go
	// without a join or leave before the lobby's reaper expires it, and
	// the number of seconds a running match may run before the reaper
	// stops it through its play coordinator.
	InstanceLifetime = 600.0

	// EndGracePeriod is how long the play coordinator waits after a game
	// instance returns before it tears down player pipes, giving a last
	// write a chance to reach its reader.
	EndGracePeriod = 0.25

	// BotShutdownGrace is how long the play coordinator waits, after
	// cancelling a finished match's context, for its bot tasks to notice
	// and return before logging them as stuck.
	BotShutdownGrace = 2.0
)

// InstanceLifetimeDuration and EndGracePeriodDuration are the time.Duration
// equivalents of the float-seconds constants above, for code that wants to
// feed them straight into time.Timer/time.Sleep.
func InstanceLifetimeDuration() time.Duration {
	return time.Duration(InstanceLifetime * float64(time.Second))
}

func EndGracePeriodDuration() time.Duration {
	return time.Duration(EndGracePeriod * float64(time.Second))
}

func BotShutdownGraceDuration() time.Duration {
	return time.Duration(BotShutdownGrace * float64(time.Second))
}
