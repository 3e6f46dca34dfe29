package httpagent

import (
	"github.com/arn-dev/httpagent/internal/dialer"
	"github.com/arn-dev/httpagent/internal/runtime"
)

// ProxyFunc resolves the proxy URL (if any) to use for a given
// target; a nil URL with a nil error means "no proxy".
type ProxyFunc = dialer.ProxyFunc

// ResolveConfig overrides DNS resolution: static-hosts entries and/or
// a custom DNS server.
type ResolveConfig = dialer.ResolveConfig

// Adapter is the concurrency back-end an Agent routes background
// spawns, sleeps, and blocking bridges through.
type Adapter = runtime.Adapter

// Executor spawns background work for the Shared and Owned runtime
// adapters.
type Executor = runtime.Executor

// Cooperative is the default runtime adapter; it needs no executor and
// spawns background work on ordinary goroutines.
func Cooperative() Adapter { return runtime.Cooperative() }

// Shared wraps an externally owned Executor without taking ownership
// of its lifecycle; its BlockOn is unavailable.
func Shared(executor Executor) Adapter { return runtime.Shared(executor) }

// Owned takes ownership of executor for the life of the Agent that
// holds the returned Adapter. BlockOn is available, and background
// work such as the pool-eviction tick runs on executor.
func Owned(executor Executor) Adapter { return runtime.Owned(executor) }
