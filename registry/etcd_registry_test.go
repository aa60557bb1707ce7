package registry

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func newEtcdRegistry(t *testing.T) *EtcdRegistry {
	endpoints := os.Getenv("ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("ETCD_ENDPOINTS not set")
	}
	reg, err := NewEtcdRegistry(strings.Split(endpoints, ","), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestRegisterAndDiscover(t *testing.T) {
	reg := newEtcdRegistry(t)
	ctx := context.Background()

	// Register two instances
	inst1 := Instance{Module: "server-a", Weight: 10, Version: "1.0"}
	inst2 := Instance{Module: "server-b", Weight: 5, Version: "1.0"}

	if err := reg.Register(ctx, "calculator@1.0", inst1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(ctx, "calculator@1.0", inst2, 10); err != nil {
		t.Fatal(err)
	}

	instances, err := reg.Discover(ctx, "calculator@1.0")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expect 2 instances, got %d", len(instances))
	}

	// Deregister one
	if err := reg.Deregister(ctx, "calculator@1.0", inst1.Module); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	instances, err = reg.Discover(ctx, "calculator@1.0")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 {
		t.Fatalf("expect 1 instance after deregister, got %d", len(instances))
	}
	if instances[0].Module != inst2.Module {
		t.Fatalf("expect %s, got %s", inst2.Module, instances[0].Module)
	}

	reg.Deregister(ctx, "calculator@1.0", inst2.Module)
}
