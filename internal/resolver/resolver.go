// Package resolver stands in for the external leader-discovery facility:
// picking which Mesos master URL to contact is explicitly out of scope, so
// this package only defines the seam and a fixed-URL implementation.
package resolver

import (
	"context"
	"net/url"
)

// MasterResolver returns the URL of the Mesos master to subscribe to. A real
// deployment would back this with ZooKeeper or a load balancer VIP; that
// facility is an external collaborator this tracker does not implement.
type MasterResolver interface {
	Resolve(ctx context.Context) (*url.URL, error)
}

// StaticResolver always returns the same configured URL. It is the only
// concrete resolver this module ships; real leader election is delegated
// elsewhere.
type StaticResolver struct {
	masterURL *url.URL
}

// NewStaticResolver parses rawURL once at construction time so Resolve never
// fails on a bad configuration value after startup.
func NewStaticResolver(rawURL string) (*StaticResolver, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &StaticResolver{masterURL: u}, nil
}

func (r *StaticResolver) Resolve(_ context.Context) (*url.URL, error) {
	return r.masterURL, nil
}
