package simonsays

import "github.com/magical-paperclip/neighborhood-sub000/domain"

// Definition is one entry of the fixed command set. Every command maps to
// exactly one canonical input key.
type Definition struct {
	Text string
	Key  domain.Key
}

var Definitions = []Definition{
	{Text: "Simon says: move forward!", Key: domain.KeyForward},
	{Text: "Simon says: move back!", Key: domain.KeyBack},
	{Text: "Simon says: move left!", Key: domain.KeyLeft},
	{Text: "Simon says: move right!", Key: domain.KeyRight},
	{Text: "Simon says: jump!", Key: domain.KeyJump},
}
