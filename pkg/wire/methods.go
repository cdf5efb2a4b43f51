// Package wire holds the gRPC method names of the cache and pub-sub services
// and the encoders for their messages. Messages are written with protowire
// directly; field numbers follow the service protos.
package wire

// Full gRPC method names of the cache and pub-sub services
const (
	CacheService  = "cache_client.Scs"
	PubsubService = "cache_client.pubsub.Pubsub"

	MethodGet       = "/" + CacheService + "/Get"
	MethodSet       = "/" + CacheService + "/Set"
	MethodDelete    = "/" + CacheService + "/Delete"
	MethodIncrement = "/" + CacheService + "/Increment"

	MethodPublish   = "/" + PubsubService + "/Publish"
	MethodSubscribe = "/" + PubsubService + "/Subscribe"
)
