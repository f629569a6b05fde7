package dnssec

type UnsupportedAnchorError string

func (e UnsupportedAnchorError) Error() string {
	return "dnssec: Record type " + string(e) + " cannot be used as a trust anchor"
}
