package activitypub

import "strings"

// verb is the closed enumeration of activity types the engines dispatch
// on. Matching is case-insensitive per ActivityStreams practice.
type verb string

const (
	verbAccept   verb = "accept"
	verbAdd      verb = "add"
	verbAnnounce verb = "announce"
	verbBlock    verb = "block"
	verbCreate   verb = "create"
	verbDelete   verb = "delete"
	verbFollow   verb = "follow"
	verbLike     verb = "like"
	verbReject   verb = "reject"
	verbRemove   verb = "remove"
	verbUndo     verb = "undo"
	verbUpdate   verb = "update"
)

func toVerb(s string) verb {
	return verb(strings.ToLower(s))
}
