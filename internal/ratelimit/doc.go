// Package ratelimit throttles clients per endpoint class with a token
// bucket, and reports advisory limit, remaining and reset values from a
// sliding window of admitted requests.
package ratelimit
