// Package registry is the discovery directory that tells clients which module
// serves an object.
//
//	Key:   /broker-rpc/{object}/{module}
//	Value: JSON-encoded Instance
//
// Servers register every hosted object when they start and deregister on
// shutdown; clients resolve an object to one module through a load balancer.
package registry

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("no instance registered")

// Instance is one module hosting an object.
type Instance struct {
	Module  string `json:"module"`
	Weight  int    `json:"weight"` // Weight for load balancing
	Version string `json:"version"`
}

type Registry interface {
	Register(ctx context.Context, object string, instance Instance, ttl int64) error
	Deregister(ctx context.Context, object string, module string) error
	Discover(ctx context.Context, object string) ([]Instance, error)
	Watch(ctx context.Context, object string) <-chan []Instance
}

const keyPrefix = "/broker-rpc/"

func objectPrefix(object string) string {
	return keyPrefix + object + "/"
}

func instanceKey(object, module string) string {
	return objectPrefix(object) + module
}
