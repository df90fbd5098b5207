package cache

import (
	"context"
	"errors"
	"fmt"
)

// Partition names a record collection inside the local store.
type Partition string

const (
	PartitionUsers   Partition = "users"
	PartitionTargets Partition = "targets"
)

// DatabaseName is the logical name of the local store.
const DatabaseName = "fiscalizacao-db"

// SchemaVersion is bumped whenever a partition is added.
const SchemaVersion = 2

// ErrUnavailable is returned by a store that could not be opened.
var ErrUnavailable = errors.New("local store unavailable")

// ErrUnknownPartition is returned for a partition the schema does not define.
var ErrUnknownPartition = errors.New("unknown partition")

// Partitions is a keyed document store with named partitions. Each record is
// an opaque JSON document keyed by a numeric id; Put overwrites.
type Partitions interface {
	Put(ctx context.Context, p Partition, id int64, doc []byte) error
	GetAll(ctx context.Context, p Partition) ([][]byte, error)
	Clear(ctx context.Context, p Partition) error
	Count(ctx context.Context, p Partition) (int, error)
	Close() error
}

// migrations lists the partitions introduced by each schema version.
var migrations = []struct {
	version   int
	partition Partition
}{
	{1, PartitionUsers},
	{2, PartitionTargets},
}

func validPartition(p Partition) error {
	for _, m := range migrations {
		if m.partition == p {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownPartition, p)
}

// Disabled is the store used when the real one cannot be opened. Reads are
// empty and writes fail with ErrUnavailable.
type Disabled struct {
	Reason error
}

var _ Partitions = Disabled{}

func (d Disabled) err() error {
	if d.Reason != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, d.Reason)
	}
	return ErrUnavailable
}

func (d Disabled) Put(context.Context, Partition, int64, []byte) error { return d.err() }

func (d Disabled) GetAll(context.Context, Partition) ([][]byte, error) { return nil, nil }

func (d Disabled) Clear(context.Context, Partition) error { return d.err() }

func (d Disabled) Count(context.Context, Partition) (int, error) { return 0, nil }

func (d Disabled) Close() error { return nil }
