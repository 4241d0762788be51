// Package egress configures and verifies the network path browsers use to
// reach the listing site.
//
// Traffic goes direct, through a user-supplied proxy, or through an
// embedded Tor daemon started with tornago. Before a run starts, a SOCKS5
// proxy is checked with a protocol handshake so a misconfigured proxy
// fails fast instead of as a channel-by-channel navigation failure.
package egress
