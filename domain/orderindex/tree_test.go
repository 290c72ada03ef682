package orderindex

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func price(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func mustInsert(t *testing.T, ix *Index, p int64, id uint64) {
	t.Helper()
	if err := ix.Insert(price(p), id); err != nil {
		t.Fatalf("insert price=%d id=%d: %v", p, id, err)
	}
}

func mustRemove(t *testing.T, ix *Index, id uint64) {
	t.Helper()
	if err := ix.Remove(id); err != nil {
		t.Fatalf("remove id=%d: %v", id, err)
	}
}

// walk collects the full (price, arrival) order starting at First.
func walk(ix *Index) []uint64 {
	var out []uint64
	for id := ix.First(); id != 0; id = ix.Next(id) {
		out = append(out, id)
	}
	return out
}

func assertOrder(t *testing.T, ix *Index, want []uint64) {
	t.Helper()
	got := walk(ix)
	if len(got) != len(want) {
		t.Fatalf("order length = %d, want %d (got %v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order[%d] = %d, want %d (got %v)", i, got[i], want[i], got)
		}
	}
}

func TestInsertOrdering(t *testing.T) {
	ix := New()

	if ix.First() != 0 || ix.Last() != 0 {
		t.Fatal("empty index should cursor to 0")
	}

	mustInsert(t, ix, 5, 1)
	mustInsert(t, ix, 4, 2)
	mustInsert(t, ix, 6, 3)

	if got := ix.First(); got != 2 {
		t.Fatalf("First() = %d, want 2", got)
	}
	if got := ix.Last(); got != 3 {
		t.Fatalf("Last() = %d, want 3", got)
	}
	assertOrder(t, ix, []uint64{2, 1, 3})
	if got := ix.Next(3); got != 0 {
		t.Fatalf("Next(3) = %d, want 0", got)
	}
}

func TestFIFOWithinPrice(t *testing.T) {
	ix := New()
	mustInsert(t, ix, 5, 1)
	mustInsert(t, ix, 4, 2)
	mustInsert(t, ix, 6, 3)

	// Same price as id 3: must queue behind it.
	mustInsert(t, ix, 6, 4)
	assertOrder(t, ix, []uint64{2, 1, 3, 4})

	// And one in the middle, behind id 1 at price 5.
	mustInsert(t, ix, 5, 5)
	assertOrder(t, ix, []uint64{2, 1, 5, 3, 4})

	if got := ix.Prev(3); got != 5 {
		t.Fatalf("Prev(3) = %d, want 5", got)
	}
	if got := ix.Prev(2); got != 0 {
		t.Fatalf("Prev(2) = %d, want 0", got)
	}
}

func TestRemoveKeepsRelativeOrder(t *testing.T) {
	ix := New()
	mustInsert(t, ix, 5, 1)
	mustInsert(t, ix, 4, 2)
	mustInsert(t, ix, 6, 3)
	mustInsert(t, ix, 6, 4)
	mustInsert(t, ix, 5, 5)

	mustRemove(t, ix, 3)
	assertOrder(t, ix, []uint64{2, 1, 5, 4})

	// Removing the root price node must not disturb the others.
	mustRemove(t, ix, 1)
	assertOrder(t, ix, []uint64{2, 5, 4})

	mustRemove(t, ix, 2)
	mustRemove(t, ix, 5)
	mustRemove(t, ix, 4)
	if ix.First() != 0 || ix.Len() != 0 || ix.Levels() != 0 {
		t.Fatalf("index not empty after removing everything: len=%d levels=%d", ix.Len(), ix.Levels())
	}
}

func TestRemoveIdempotence(t *testing.T) {
	ix := New()
	mustInsert(t, ix, 10, 7)
	mustRemove(t, ix, 7)
	if err := ix.Remove(7); err != ErrNotFound {
		t.Fatalf("second Remove(7) = %v, want ErrNotFound", err)
	}
}

func TestDuplicateInsertRejected(t *testing.T) {
	ix := New()
	mustInsert(t, ix, 10, 1)
	if err := ix.Insert(price(11), 1); err != ErrDuplicateID {
		t.Fatalf("duplicate insert = %v, want ErrDuplicateID", err)
	}
	if err := ix.Insert(price(11), 0); err != ErrZeroID {
		t.Fatalf("zero-id insert = %v, want ErrZeroID", err)
	}
}

func TestPeek(t *testing.T) {
	ix := New()
	mustInsert(t, ix, 42, 9)
	p, err := ix.Peek(9)
	if err != nil {
		t.Fatalf("Peek(9): %v", err)
	}
	if !p.Equal(price(42)) {
		t.Fatalf("Peek(9) = %s, want 42", p)
	}
	if _, err := ix.Peek(10); err != ErrNotFound {
		t.Fatalf("Peek(10) = %v, want ErrNotFound", err)
	}
}

func TestLargeScaleAddRemoveReprice(t *testing.T) {
	ix := New()

	inserts := []struct {
		price int64
		id    uint64
	}{
		{10, 1}, {5, 2}, {3, 3}, {77, 4}, {4, 5},
		{5, 6}, {88, 7}, {1, 8}, {14, 9}, {11, 10},
		{22, 11}, {21, 12}, {21, 13}, {77, 14}, {45, 15},
		{57, 16}, {88, 17}, {19, 18}, {14, 19}, {11, 20},
	}
	for _, in := range inserts {
		mustInsert(t, ix, in.price, in.id)
	}

	assertOrder(t, ix, []uint64{8, 3, 5, 2, 6, 1, 10, 20, 9, 19, 18, 12, 13, 11, 15, 16, 4, 14, 7, 17})

	for _, id := range []uint64{7, 8, 13, 16, 2} {
		mustRemove(t, ix, id)
	}
	assertOrder(t, ix, []uint64{3, 5, 6, 1, 10, 20, 9, 19, 18, 12, 11, 15, 4, 14, 17})

	// Repricing is remove-then-insert, never key mutation.
	mustRemove(t, ix, 9)
	mustInsert(t, ix, 23, 9)
	assertOrder(t, ix, []uint64{3, 5, 6, 1, 10, 20, 19, 18, 12, 11, 9, 15, 4, 14, 17})
}

func TestAscendMatchesCursorWalk(t *testing.T) {
	ix := New()
	mustInsert(t, ix, 5, 1)
	mustInsert(t, ix, 4, 2)
	mustInsert(t, ix, 6, 3)
	mustInsert(t, ix, 6, 4)

	var ids []uint64
	var last decimal.Decimal
	first := true
	ix.Ascend(func(p decimal.Decimal, id uint64) bool {
		if !first && p.Cmp(last) < 0 {
			t.Fatalf("Ascend visited decreasing price %s after %s", p, last)
		}
		first, last = false, p
		ids = append(ids, id)
		return true
	})
	cursor := walk(ix)
	if len(ids) != len(cursor) {
		t.Fatalf("Ascend yielded %d ids, cursor walk %d", len(ids), len(cursor))
	}
	for i := range ids {
		if ids[i] != cursor[i] {
			t.Fatalf("Ascend[%d] = %d, cursor[%d] = %d", i, ids[i], i, cursor[i])
		}
	}
}

func TestRandomChurnInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ix := New()

	resting := make(map[uint64]int64)
	arrival := make(map[uint64]int)
	nextID := uint64(1)
	seq := 0

	for step := 0; step < 5000; step++ {
		if len(resting) == 0 || rng.Intn(3) != 0 {
			p := int64(rng.Intn(200) + 1)
			id := nextID
			nextID++
			mustInsert(t, ix, p, id)
			resting[id] = p
			seq++
			arrival[id] = seq
		} else {
			var victim uint64
			n := rng.Intn(len(resting))
			for id := range resting {
				if n == 0 {
					victim = id
					break
				}
				n--
			}
			mustRemove(t, ix, victim)
			delete(resting, victim)
			delete(arrival, victim)
		}
	}

	if ix.Len() != len(resting) {
		t.Fatalf("Len() = %d, want %d", ix.Len(), len(resting))
	}

	checkInvariants(t, ix)

	// Cursor order must be non-decreasing in price and FIFO within a
	// price among the ids still present.
	var prevPrice int64 = -1
	prevArrival := 0
	for id := ix.First(); id != 0; id = ix.Next(id) {
		p, ok := resting[id]
		if !ok {
			t.Fatalf("walk yielded id %d that should not rest", id)
		}
		if p < prevPrice {
			t.Fatalf("price went backwards: %d after %d", p, prevPrice)
		}
		if p == prevPrice && arrival[id] < prevArrival {
			t.Fatalf("FIFO violated at price %d: arrival %d after %d", p, arrival[id], prevArrival)
		}
		prevPrice, prevArrival = p, arrival[id]
		delete(resting, id)
	}
	if len(resting) != 0 {
		t.Fatalf("walk missed %d resting ids", len(resting))
	}
}

// checkInvariants verifies the red-black coloring rules and the
// node-exists-iff-queue-non-empty invariant over the whole arena.
func checkInvariants(t *testing.T, ix *Index) {
	t.Helper()
	if ix.root != nilNode && ix.nodes[ix.root].color != black {
		t.Fatal("root is not black")
	}
	if ix.nodes[0].color != black {
		t.Fatal("sentinel is not black")
	}
	var verify func(h handle) int
	verify = func(h handle) int {
		if h == nilNode {
			return 1
		}
		n := ix.nodes[h]
		if n.head == 0 || n.tail == 0 || n.count <= 0 {
			t.Fatalf("tree node %d has an empty queue", h)
		}
		if n.color == red {
			if ix.nodes[n.left].color == red || ix.nodes[n.right].color == red {
				t.Fatalf("red node %d has a red child", h)
			}
		}
		if n.left != nilNode && ix.nodes[n.left].price.Cmp(n.price) >= 0 {
			t.Fatalf("left child of %d violates search order", h)
		}
		if n.right != nilNode && ix.nodes[n.right].price.Cmp(n.price) <= 0 {
			t.Fatalf("right child of %d violates search order", h)
		}
		lh := verify(n.left)
		rh := verify(n.right)
		if lh != rh {
			t.Fatalf("black height mismatch at node %d: %d vs %d", h, lh, rh)
		}
		if n.color == black {
			lh++
		}
		return lh
	}
	verify(ix.root)
}

func BenchmarkInsertRemove(b *testing.B) {
	b.ReportAllocs()
	ix := New()
	prices := make([]decimal.Decimal, 512)
	for i := range prices {
		prices[i] = decimal.NewFromInt(int64(i + 1))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := uint64(i + 1)
		_ = ix.Insert(prices[i%len(prices)], id)
		if i >= 256 {
			_ = ix.Remove(id - 256)
		}
	}
}
