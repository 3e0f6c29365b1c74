package session

// Session attribute keys, the only control channel the client has.
const (
	attrMode             = "mode"
	attrCaptionsLanguage = "captions_language"
	attrInputLanguage    = "input_language"
	attrOutputLanguage   = "output_language"
)

// RoutingMode selects how final transcripts fan out to translators.
type RoutingMode int

const (
	// ModeBroadcast sends every final transcript to every active translator.
	ModeBroadcast RoutingMode = iota
	// ModePointToPoint sends transcripts only to the designated output
	// language's translator.
	ModePointToPoint
)

func (m RoutingMode) String() string {
	if m == ModePointToPoint {
		return "point-to-point"
	}
	return "broadcast"
}

// attributeUpdate is the typed form of one attribute-change notification,
// resolved once at the boundary.
type attributeUpdate struct {
	mode             *RoutingMode
	captionsLanguage string
	inputLanguage    string
	outputLanguage   string
}

// parseAttributes resolves the raw attribute map. An absent mode key leaves
// the mode unchanged; "single" selects point-to-point, anything else falls
// back to broadcast.
func parseAttributes(changed map[string]string) attributeUpdate {
	var u attributeUpdate
	if v, ok := changed[attrMode]; ok {
		mode := ModeBroadcast
		if v == "single" {
			mode = ModePointToPoint
		}
		u.mode = &mode
	}
	u.captionsLanguage = changed[attrCaptionsLanguage]
	u.inputLanguage = changed[attrInputLanguage]
	u.outputLanguage = changed[attrOutputLanguage]
	return u
}
