package forwarder

import "errors"

var ErrNoServerAddress = errors.New("upstream/forwarder: No name server address configured")
