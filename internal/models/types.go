package models

// DeleteReason identifies which policy decided a torrent must be removed
type DeleteReason string

const (
	DeleteReasonNone            DeleteReason = ""
	DeleteReasonExtensionPolicy DeleteReason = "extension-policy"
	DeleteReasonDiscImage       DeleteReason = "disc-image"
	DeleteReasonPreAir          DeleteReason = "pre-air"
)

// Pre-air verdict reason tags. Allow reasons may be joined with "+" when
// several conditions hold at once (e.g. "aired+whitelist").
const (
	ReasonNoHistory = "no-history"
	ReasonCap       = "cap"
	ReasonAired     = "aired"
	ReasonGrace     = "grace"
	ReasonWhitelist = "whitelist"
	ReasonBlock     = "block"
)
