package features

import (
	_ "github.com/zhouchenh/trustDNS/internal/upstream/forwarder"
	_ "github.com/zhouchenh/trustDNS/internal/upstream/rootns"
)
