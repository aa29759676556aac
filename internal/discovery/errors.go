package discovery

import "errors"

// ErrBrowseFailed is returned when the mDNS browse cannot start,
// typically because no multicast-capable interface is available.
var ErrBrowseFailed = errors.New("discovery: browse failed")
