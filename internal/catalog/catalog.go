// Package catalog lists the built-in game.Builders compiled into this
// server, the Go analogue of the original's src/games/mod.rs::get().
package catalog

import (
	"colosseum/internal/game"
	"colosseum/internal/game/roshambo"
	"colosseum/internal/game/royalur"
)

// Builtin returns every game.Builder this server ships with.
func Builtin() []game.Builder {
	return []game.Builder{
		roshambo.New(),
		royalur.New(),
	}
}
