package cache

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/rs/zerolog"

	"github.com/five82/fiscal/internal/api"
)

func sortedTargetIDs(targets []api.Target) []int64 {
	ids := make([]int64, len(targets))
	for i, t := range targets {
		ids[i] = t.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func TestCache_SaveTargetsLastWriteWins(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemory(), zerolog.Nop())

	input := []api.Target{
		{ID: 1, NumeroArt: "a"},
		{ID: 2, NumeroArt: "b"},
		{ID: 1, NumeroArt: "c"},
	}
	if err := c.SaveTargets(ctx, input); err != nil {
		t.Fatalf("SaveTargets returned error: %v", err)
	}

	got, err := c.LoadAllTargets(ctx)
	if err != nil {
		t.Fatalf("LoadAllTargets returned error: %v", err)
	}
	if ids := sortedTargetIDs(got); len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("ids = %v, want [1 2]", ids)
	}
	for _, target := range got {
		if target.ID == 1 && target.NumeroArt != "c" {
			t.Fatalf("id 1 NumeroArt = %q, want last write c", target.NumeroArt)
		}
	}
}

func TestCache_SaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemory(), zerolog.Nop())
	user := api.User{ID: 7, Name: "Ana"}

	if err := c.SaveUsers(ctx, []api.User{user}); err != nil {
		t.Fatalf("SaveUsers returned error: %v", err)
	}
	once, _ := c.LoadAllUsers(ctx)
	if err := c.SaveUsers(ctx, []api.User{user}); err != nil {
		t.Fatalf("SaveUsers returned error: %v", err)
	}
	twice, _ := c.LoadAllUsers(ctx)

	if len(once) != 1 || len(twice) != 1 || once[0].Name != twice[0].Name {
		t.Fatalf("once = %#v, twice = %#v; want identical single record", once, twice)
	}
}

func TestCache_LoadEmptyPartition(t *testing.T) {
	c := New(NewMemory(), zerolog.Nop())
	got, err := c.LoadAllTargets(context.Background())
	if err != nil {
		t.Fatalf("LoadAllTargets returned error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("LoadAllTargets = %#v, want empty non-nil", got)
	}
}

func TestCache_ClearTargetsKeepsUsers(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemory(), zerolog.Nop())
	_ = c.SaveUsers(ctx, []api.User{{ID: 1}})
	_ = c.SaveTargets(ctx, []api.Target{{ID: 5}, {ID: 6}})

	if err := c.ClearTargets(ctx); err != nil {
		t.Fatalf("ClearTargets returned error: %v", err)
	}
	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats[PartitionTargets] != 0 || stats[PartitionUsers] != 1 {
		t.Fatalf("stats = %v, want targets=0 users=1", stats)
	}
}

func TestCache_SkipsUndecodableRecords(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	_ = mem.Put(ctx, PartitionTargets, 1, []byte(`{"id":1}`))
	_ = mem.Put(ctx, PartitionTargets, 2, []byte(`{broken`))

	got, err := New(mem, zerolog.Nop()).LoadAllTargets(ctx)
	if err != nil {
		t.Fatalf("LoadAllTargets returned error: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("LoadAllTargets = %#v, want only id 1", got)
	}
}

func TestCache_DisabledStoreDegrades(t *testing.T) {
	ctx := context.Background()
	c := New(nil, zerolog.Nop())
	if c.Available() {
		t.Fatalf("Available = true for disabled store")
	}

	err := c.SaveTargets(ctx, []api.Target{{ID: 1}})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("SaveTargets error = %v, want ErrUnavailable", err)
	}
	got, err := c.LoadAllTargets(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("LoadAllTargets = %#v, %v; want empty, nil", got, err)
	}
}

func TestMemory_UnknownPartition(t *testing.T) {
	err := NewMemory().Put(context.Background(), Partition("teams"), 1, nil)
	if !errors.Is(err, ErrUnknownPartition) {
		t.Fatalf("Put error = %v, want ErrUnknownPartition", err)
	}
}
