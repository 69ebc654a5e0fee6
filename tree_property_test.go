package livediff

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
)

// slotKind picks what a generated dynamic slot holds.
type slotKind int

const (
	kindScalar slotKind = iota
	kindTree
	kindComp
)

// skeleton is a generated template shape: fixed statics and a kind per
// slot. Two renders of the same skeleton share statics identity, which is
// exactly the contract Diff requires.
type skeleton struct {
	statics []string
	slots   []slotSpec
}

type slotSpec struct {
	kind slotKind
	sub  *skeleton // nested tree shape
	item *skeleton // comprehension item shape
}

func randSkeleton(r *rand.Rand, faker *gofakeit.Faker, depth int) *skeleton {
	n := r.Intn(4)
	sk := &skeleton{statics: make([]string, n+1), slots: make([]slotSpec, n)}
	for i := range sk.statics {
		sk.statics[i] = fmt.Sprintf("<span class=%q>", faker.Word())
	}
	for i := range sk.slots {
		kind := kindScalar
		if depth > 0 {
			kind = slotKind(r.Intn(3))
		}
		spec := slotSpec{kind: kind}
		switch kind {
		case kindTree:
			spec.sub = randSkeleton(r, faker, depth-1)
		case kindComp:
			spec.item = randSkeleton(r, faker, depth-1)
		}
		sk.slots[i] = spec
	}
	return sk
}

// render produces one tree for the skeleton with fresh random values.
func (sk *skeleton) render(r *rand.Rand, faker *gofakeit.Faker) *Tree {
	dynamics := make([]Dynamic, len(sk.slots))
	for i, spec := range sk.slots {
		switch spec.kind {
		case kindScalar:
			dynamics[i] = Scalar(faker.Sentence(r.Intn(4) + 1))
		case kindTree:
			dynamics[i] = spec.sub.render(r, faker)
		case kindComp:
			rows := make([][]Dynamic, r.Intn(5))
			for j := range rows {
				rows[j] = spec.item.render(r, faker).dynamics
			}
			dynamics[i] = MustComprehension(sk.slots[i].item.statics, rows...)
		}
	}
	return MustTree(sk.statics, dynamics...)
}

func TestDiffMergeProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	faker := gofakeit.New(42)

	for i := 0; i < 200; i++ {
		sk := randSkeleton(r, faker, 2)
		prev := sk.render(r, faker)
		next := sk.render(r, faker)

		// Diffing a render against itself is empty.
		self, err := Diff(prev, prev)
		if err != nil {
			t.Fatalf("iteration %d: self diff failed: %v", i, err)
		}
		if len(self) != 0 {
			t.Fatalf("iteration %d: self diff not empty: %v", i, self)
		}

		// Merge inverts Diff.
		cs, err := Diff(prev, next)
		if err != nil {
			t.Fatalf("iteration %d: diff failed: %v", i, err)
		}
		merged, err := Merge(prev, cs)
		if err != nil {
			t.Fatalf("iteration %d: merge failed: %v", i, err)
		}
		if got, want := Flatten(merged), Flatten(next); got != want {
			t.Fatalf("iteration %d: merged output %q, want %q", i, got, want)
		}
	}
}

func TestWireRoundTripProperties(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	faker := gofakeit.New(7)

	for i := 0; i < 100; i++ {
		sk := randSkeleton(r, faker, 2)
		prev := sk.render(r, faker)
		next := sk.render(r, faker)

		// Full tree survives the wire.
		data, err := json.Marshal(prev)
		if err != nil {
			t.Fatalf("iteration %d: marshal failed: %v", i, err)
		}
		var decodedTree Tree
		if err := json.Unmarshal(data, &decodedTree); err != nil {
			t.Fatalf("iteration %d: unmarshal failed: %v", i, err)
		}
		if got, want := Flatten(&decodedTree), Flatten(prev); got != want {
			t.Fatalf("iteration %d: decoded tree flattens to %q, want %q", i, got, want)
		}

		// A diff survives the wire and still merges correctly.
		cs, err := Diff(prev, next)
		if err != nil {
			t.Fatalf("iteration %d: diff failed: %v", i, err)
		}
		if len(cs) == 0 {
			continue
		}
		wire, err := json.Marshal(cs)
		if err != nil {
			t.Fatalf("iteration %d: marshal diff failed: %v", i, err)
		}
		var decodedCS ChangeSet
		if err := json.Unmarshal(wire, &decodedCS); err != nil {
			t.Fatalf("iteration %d: unmarshal diff failed: %v", i, err)
		}
		merged, err := Merge(prev, decodedCS)
		if err != nil {
			t.Fatalf("iteration %d: merge of decoded diff failed: %v", i, err)
		}
		if got, want := Flatten(merged), Flatten(next); got != want {
			t.Fatalf("iteration %d: merged output %q, want %q", i, got, want)
		}
	}
}

func TestMinifyProperties(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	faker := gofakeit.New(99)

	for i := 0; i < 50; i++ {
		sk := randSkeleton(r, faker, 2)
		prev := MinifyTree(sk.render(r, faker))
		next := MinifyTree(sk.render(r, faker))

		// Minification preserves statics identity between renders.
		cs, err := Diff(prev, next)
		if err != nil {
			t.Fatalf("iteration %d: diff of minified trees failed: %v", i, err)
		}
		merged, err := Merge(prev, cs)
		if err != nil {
			t.Fatalf("iteration %d: merge failed: %v", i, err)
		}
		if got, want := Flatten(merged), Flatten(next); got != want {
			t.Fatalf("iteration %d: merged output %q, want %q", i, got, want)
		}
	}
}
