package cluster

import "github.com/clusterd-project/clusterd/pkg/transport"

// Config is the immutable cluster-engine configuration built once at
// startup. Workers and Respawn are resolved to their defaults
// (runtime.NumCPU(), true) by the caller before this struct is built.
type Config struct {
	Workers   int
	Respawn   bool
	Env       map[string]string
	Transport transport.Transport
}
