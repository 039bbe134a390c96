// Package ratelimit bounds the inbound request rate per caller identity.
//
// Two limiters are provided. TokenBucket refills capacity lazily on access
// and admits a request by deducting tokens. SlidingWindow keeps the
// timestamps of admitted requests inside a trailing interval and admits
// while the interval holds fewer than rate*window entries. Both keep one
// independent state object per identity, created lazily, and run a
// periodic sweep that evicts identities idle beyond a threshold so the
// map cannot grow without bound.
//
// Identity derivation is pluggable via KeyExtractor; the default chain
// prefers the forwarded address, then the direct address, then an
// authenticated subject header.
package ratelimit
