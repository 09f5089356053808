package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/oriys/novarmi"
)

// greeterService is the interface both demo processes agree on. Remote
// proxies for it are opaque *rmi.Stub values; neither side type-asserts
// a local Go interface implementation out of a Stub, since this runtime
// has no codegen step to synthesize one.
type greeterService interface {
	Greet(ctx context.Context, name string) (string, error)
	Fail(ctx context.Context, reason string) error
}

type greeterImpl struct{}

func (greeterImpl) Greet(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", errors.New("name must not be empty")
	}
	return fmt.Sprintf("Hello, %s!", name), nil
}

func (greeterImpl) Fail(ctx context.Context, reason string) error {
	return fmt.Errorf("demo failure: %s", reason)
}

func describeGreeter() (*rmi.RemoteInfo, error) {
	return rmi.DescribeType("GreeterService", reflect.TypeOf((*greeterService)(nil)).Elem())
}

// bootstrapDescriptor is what serve writes and dial reads to agree on
// the freshly minted object identifier and the RemoteInfo describing
// it, standing in for the root-object discovery mechanism novarmi
// leaves to the caller. A real deployment would publish this through a
// directory service instead of a shared file.
type bootstrapDescriptor struct {
	ObjectID uint64          `json:"object_id"`
	Info     *rmi.RemoteInfo `json:"info"`
}

func writeBootstrap(path string, objectID rmi.Identifier, info *rmi.RemoteInfo) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create bootstrap file: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(bootstrapDescriptor{ObjectID: uint64(objectID), Info: info})
}

func readBootstrap(path string) (rmi.Identifier, *rmi.RemoteInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, fmt.Errorf("open bootstrap file: %w", err)
	}
	defer f.Close()
	var d bootstrapDescriptor
	if err := json.NewDecoder(f).Decode(&d); err != nil {
		return 0, nil, fmt.Errorf("decode bootstrap file: %w", err)
	}
	return rmi.Identifier(d.ObjectID), d.Info, nil
}
