// Package validate holds the compiled regular expressions used to accept or
// reject client-supplied names, game names, and passwords.
package validate

import "regexp"

var (
	// Username matches 1-16 visible ASCII characters, excluding '$' (kept
	// out of usernames because the play coordinator uses it to prefix
	// synthetic bot identifiers, e.g. "$bot0").
	Username = regexp.MustCompile(`^[!-#%-~]{1,16}$`)

	// Password matches 0-32 visible ASCII characters. An empty password
	// means "no password set".
	Password = regexp.MustCompile(`^[!-~]{0,32}$`)

	// GameName matches 1-24 printable ASCII characters (visible plus
	// space), used for both the registry's game names and the
	// human-chosen match name.
	GameName = regexp.MustCompile(`^[ -~]{1,24}$`)

	// ArchiveID matches the lowercase base32hex match id alphabet used by
	// wire.NewMatchID, for validating ids read back from persistence.
	ArchiveID = regexp.MustCompile(`^[0-9a-v]{16}$`)
)
