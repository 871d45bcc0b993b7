// Package redis connects flowkit pipelines to Redis using go-redis.
//
// It provides a list source and a push sink for work queues, a Dedupe stage
// dropping items already seen within a TTL, and Cached, which memoizes an
// item transform in a TypedStore so repeated keys skip the expensive call.
package redis
