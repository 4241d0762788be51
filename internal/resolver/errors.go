package resolver

import "errors"

// ErrChannelResolution wraps failures that stopped the cascade for one
// channel, such as a failed navigation. It never escapes the channel.
var ErrChannelResolution = errors.New("channel resolution failed")
