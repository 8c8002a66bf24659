// Package wire implements the JSON request/reply envelope spoken over the
// single WebSocket connection a client holds open for its whole session. It
// generalizes the teacher's tagged WSMessage (internal/handlers/websocket.go)
// from one message family into the full request/reply surface of a
// handshake, game catalog, lobby, and spectator protocol.
package wire

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/json"
	"fmt"
	"strings"
)

// Magic and Version are exchanged during the handshake. A client whose
// magic or version does not match is still told the server's values, but
// the connection is then closed by the session state machine.
const (
	Magic   = "coco"
	Version = uint64(1)
)

// Request types, one per wire.Request.Type value.
const (
	ReqHandshake        = "Handshake"
	ReqGameList         = "GameList"
	ReqGameDescription  = "GameDescription"
	ReqGameNew          = "GameNew"
	ReqLobbyList        = "LobbyList"
	ReqLobbySubscribe   = "LobbySubscribe"
	ReqLobbyUnsubscribe = "LobbyUnsubscribe"
	ReqLobbyJoinMatch   = "LobbyJoinMatch"
	ReqLobbyLeaveMatch  = "LobbyLeaveMatch"
	ReqSpectateJoin     = "SpectateJoin"
	ReqSpectateLeave    = "SpectateLeave"
	ReqHistoryList      = "HistoryMatchList"
	ReqHistoryMatch     = "HistoryMatch"
)

// Reply types, one per wire.Reply.Type value.
const (
	RepHandshake         = "Handshake"
	RepGameList          = "GameList"
	RepGameDescription   = "GameDescription"
	RepGameNew           = "GameNew"
	RepLobbyList         = "LobbyList"
	RepLobbySubscribed   = "LobbySubscribed"
	RepLobbyJoinedMatch  = "LobbyJoinedMatch"
	RepLobbyNew          = "LobbyNew"
	RepLobbyUpdate       = "LobbyUpdate"
	RepLobbyDelete       = "LobbyDelete"
	RepLobbyUnsubscribed = "LobbyUnsubscribed"
	RepLobbyLeavedMatch  = "LobbyLeavedMatch"
	RepMatchStarted      = "MatchStarted"
	RepMatchEnded        = "MatchEnded"
	RepSpectateJoined    = "SpectateJoined"
	RepSpectateStarted   = "SpectateStarted"
	RepSpectateSynced    = "SpectateSynced"
	RepSpectateEnded     = "SpectateEnded"
	RepSpectateLeaved    = "SpectateLeaved"
	RepHistoryList       = "HistoryMatchList"
	RepHistoryMatch      = "HistoryMatch"
)

// GameParams is the client-supplied half of a match's parameters; any field
// left nil/zero is filled in by the chosen game.Builder with its own
// defaults.
type GameParams struct {
	Players *int     `json:"players,omitempty"`
	Bots    int      `json:"bots"`
	Timeout *float64 `json:"timeout,omitempty"`
}

// MatchInfo is the lobby snapshot/update payload sent to subscribed and
// joined clients. Password is a boolean — the password string itself is
// never echoed back.
type MatchInfo struct {
	ID         string            `json:"id"`
	Game       string            `json:"game"`
	Name       string            `json:"name"`
	Players    int               `json:"players"`
	Bots       int               `json:"bots"`
	Timeout    float64           `json:"timeout"`
	Args       map[string]string `json:"args"`
	Running    bool              `json:"running"`
	Time       int64             `json:"time"`
	Connected  []string          `json:"connected"`
	Spectators int               `json:"spectators"`
	Password   bool              `json:"password"`
	Verified   bool              `json:"verified"`
}

// ArchiveRecord is what the persistence Store keeps for a finished match.
type ArchiveRecord struct {
	ID        string            `json:"id"`
	Game      string            `json:"game"`
	Name      string            `json:"name"`
	Args      map[string]string `json:"args"`
	Players   []string          `json:"players"`
	BotCount  int               `json:"botCount"`
	History   []byte            `json:"history"`
	CreatedAt int64             `json:"createdAt"`
}

// Request is the single discriminated envelope every client message is
// unmarshaled into; Type selects which of the remaining fields apply.
type Request struct {
	Type string `json:"type"`

	// Handshake
	Magic   string `json:"magic,omitempty"`
	Version uint64 `json:"version,omitempty"`

	// GameDescription / GameNew: the registry game name.
	Game string `json:"game,omitempty"`

	// GameNew: the human-chosen match name, params, free-form args, and
	// optional password/verification-password.
	Name         string            `json:"name,omitempty"`
	Params       GameParams        `json:"params,omitempty"`
	Args         map[string]string `json:"args,omitempty"`
	Password     *string           `json:"password,omitempty"`
	Verification *string           `json:"verification,omitempty"`

	// LobbyJoinMatch / SpectateJoin / HistoryMatch: target match id.
	ID string `json:"id,omitempty"`

	// LobbyJoinMatch: the player's chosen in-match username.
	Username string `json:"username,omitempty"`
}

// Reply is the single discriminated envelope every server message is
// marshaled from. A "Result<T, string>" in the original protocol is
// represented here as T plus an Error string: Error set means the
// operation failed and the T-shaped fields are zero.
type Reply struct {
	Type string `json:"type"`

	// Handshake
	Magic   string `json:"magic,omitempty"`
	Version uint64 `json:"version,omitempty"`

	// GameList
	Games []string `json:"games,omitempty"`

	// GameDescription
	Description *string `json:"description,omitempty"`

	// GameNew / LobbyJoinedMatch / SpectateJoined: either ID/Info is
	// populated, or Error is.
	ID    string     `json:"id,omitempty"`
	Info  *MatchInfo `json:"info,omitempty"`
	Error string     `json:"error,omitempty"`

	// LobbyList / LobbySubscribed seed
	InfoList []MatchInfo `json:"infoList,omitempty"`

	// LobbyUpdate / LobbyNew carry a single MatchInfo in Info.
	// LobbyDelete carries only the deleted match's id, in ID.

	// HistoryMatchList
	Ids []string `json:"ids,omitempty"`

	// HistoryMatch
	Record *ArchiveRecord `json:"record,omitempty"`
}

// Parse decodes a single client text frame into a Request.
func Parse(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, fmt.Errorf("cannot parse request: %w", err)
	}
	return req, nil
}

// Forge encodes a Reply as the text frame sent back to the client.
func Forge(r Reply) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("cannot forge reply: %w", err)
	}
	return raw, nil
}

// matchIDEncoding is the DNSSEC/NSEC3-style base32hex alphabet
// (0-9a-v), lowercased and unpadded, matching the original's
// choice of a case-insensitive, URL-safe id alphabet.
var matchIDEncoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// NewMatchID returns a fresh 16-character match id: 10 bytes of
// crypto/rand entropy, base32hex-encoded and lowercased.
func NewMatchID() (string, error) {
	var buf [10]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("cannot generate match id: %w", err)
	}
	return strings.ToLower(matchIDEncoding.EncodeToString(buf[:])), nil
}
