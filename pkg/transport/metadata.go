package transport

import (
	"runtime"

	"google.golang.org/grpc/metadata"
)

// Version is the SDK version reported in the agent header
const Version = "0.4.0"

// Outbound header names
const (
	HeaderAuthorization  = "authorization"
	HeaderAgent          = "agent"
	HeaderRuntimeVersion = "runtime-version"
	// HeaderCache selects the cache (or topic namespace) a call applies to
	HeaderCache = "cache"
)

// Agent returns the client identity sent with every call
func Agent() string {
	return "relay-go:" + Version
}

// BaseMetadata returns the headers every call carries
func BaseMetadata(authToken string) metadata.MD {
	md := metadata.Pairs(
		HeaderAgent, Agent(),
		HeaderRuntimeVersion, runtime.Version(),
	)
	if authToken != "" {
		md.Set(HeaderAuthorization, authToken)
	}
	return md
}

// outboundMetadata builds the headers for one logical call
func outboundMetadata(base metadata.MD, resource string, extra []string) metadata.MD {
	md := base.Copy()
	if resource != "" {
		md.Set(HeaderCache, resource)
	}
	for i := 0; i+1 < len(extra); i += 2 {
		md.Append(extra[i], extra[i+1])
	}
	return md
}
