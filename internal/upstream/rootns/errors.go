package rootns

import "errors"

var (
	ErrNoRootServers    = errors.New("upstream/rootns: No root server addresses configured")
	ErrAllServersFailed = errors.New("upstream/rootns: All root servers failed")
)
