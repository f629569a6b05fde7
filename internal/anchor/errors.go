package anchor

import "errors"

var (
	ErrNoKeyFile       = errors.New("anchor: No managed keyset file configured")
	ErrNotAnchorRecord = errors.New("anchor: Only DNSKEY and DS records can be trust anchors")
)
