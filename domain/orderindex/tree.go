package orderindex

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicateID is returned when an id is already present anywhere
	// in the index. Callers must Remove before re-inserting an id whose
	// price changed; keys are never mutated in place.
	ErrDuplicateID = errors.New("orderindex: duplicate order id")

	// ErrNotFound is returned for operations on an id the index does
	// not hold.
	ErrNotFound = errors.New("orderindex: order id not found")

	// ErrZeroID is returned on an attempt to insert id 0, which is the
	// empty-cursor sentinel.
	ErrZeroID = errors.New("orderindex: order id zero is reserved")
)

type color uint8

const (
	red   color = 0
	black color = 1
)

// handle references a node slot in the arena. Handle 0 is the black
// sentinel and doubles as "no node".
type handle int32

const nilNode handle = 0

type node struct {
	price  decimal.Decimal
	parent handle
	left   handle
	right  handle
	color  color

	// FIFO queue of order ids resting at this price.
	head  uint64
	tail  uint64
	count int
}

// link threads an order id into its price node's FIFO queue.
type link struct {
	node handle
	prev uint64
	next uint64
}

// Index is a price-ordered set of resting order ids: a red-black tree
// over distinct prices, FIFO within a price. The zero id is the
// sentinel returned by cursor operations on an empty or exhausted
// index.
type Index struct {
	nodes []node
	free  []handle
	root  handle
	links map[uint64]link
}

// New constructs an empty index with the sentinel in slot 0.
func New() *Index {
	ix := &Index{
		nodes: make([]node, 1, 64),
		root:  nilNode,
		links: make(map[uint64]link),
	}
	ix.nodes[0].color = black
	return ix
}

// Len returns the number of resting ids.
func (ix *Index) Len() int { return len(ix.links) }

// Levels returns the number of distinct resting prices.
func (ix *Index) Levels() int { return len(ix.nodes) - 1 - len(ix.free) }

// Contains reports whether id rests in the index.
func (ix *Index) Contains(id uint64) bool {
	_, ok := ix.links[id]
	return ok
}

// Insert files id under price: appended to the price node's FIFO tail
// when the node exists, otherwise a new node is created and the tree
// rebalanced.
func (ix *Index) Insert(price decimal.Decimal, id uint64) error {
	if id == 0 {
		return ErrZeroID
	}
	if _, ok := ix.links[id]; ok {
		return ErrDuplicateID
	}

	h := ix.upsertNode(price)
	n := &ix.nodes[h]
	if n.head == 0 {
		n.head, n.tail = id, id
		ix.links[id] = link{node: h}
	} else {
		tail := n.tail
		tl := ix.links[tail]
		tl.next = id
		ix.links[tail] = tl
		ix.links[id] = link{node: h, prev: tail}
		n.tail = id
	}
	n.count++
	return nil
}

// Remove unlinks id from its FIFO queue; an emptied queue deletes the
// price node and rebalances.
func (ix *Index) Remove(id uint64) error {
	l, ok := ix.links[id]
	if !ok {
		return ErrNotFound
	}

	n := &ix.nodes[l.node]
	if l.prev != 0 {
		pl := ix.links[l.prev]
		pl.next = l.next
		ix.links[l.prev] = pl
	} else {
		n.head = l.next
	}
	if l.next != 0 {
		nl := ix.links[l.next]
		nl.prev = l.prev
		ix.links[l.next] = nl
	} else {
		n.tail = l.prev
	}
	n.count--
	delete(ix.links, id)

	if n.head == 0 {
		ix.deleteNode(l.node)
	}
	return nil
}

// Peek returns the price id rests at without mutating the index.
func (ix *Index) Peek(id uint64) (decimal.Decimal, error) {
	l, ok := ix.links[id]
	if !ok {
		return decimal.Decimal{}, ErrNotFound
	}
	return ix.nodes[l.node].price, nil
}

// First returns the id at the FIFO head of the minimum price, or 0.
func (ix *Index) First() uint64 {
	h := ix.minNode(ix.root)
	return ix.nodes[h].head
}

// Last returns the id at the FIFO tail of the maximum price, or 0.
func (ix *Index) Last() uint64 {
	h := ix.maxNode(ix.root)
	return ix.nodes[h].tail
}

// Next returns the id following id in global (price, arrival) order:
// the next id in the same FIFO queue, else the head of the next-higher
// price node, else 0. Unknown ids yield 0.
func (ix *Index) Next(id uint64) uint64 {
	l, ok := ix.links[id]
	if !ok {
		return 0
	}
	if l.next != 0 {
		return l.next
	}
	return ix.nodes[ix.successor(l.node)].head
}

// Prev is the mirror of Next: previous in the same queue, else the
// tail of the next-lower price node, else 0.
func (ix *Index) Prev(id uint64) uint64 {
	l, ok := ix.links[id]
	if !ok {
		return 0
	}
	if l.prev != 0 {
		return l.prev
	}
	return ix.nodes[ix.predecessor(l.node)].tail
}

// Ascend walks every resting id in (price, arrival) order until fn
// returns false.
func (ix *Index) Ascend(fn func(price decimal.Decimal, id uint64) bool) {
	for h := ix.minNode(ix.root); h != nilNode; h = ix.successor(h) {
		price := ix.nodes[h].price
		for id := ix.nodes[h].head; id != 0; id = ix.links[id].next {
			if !fn(price, id) {
				return
			}
		}
	}
}

/******************** arena ********************/

func (ix *Index) alloc(price decimal.Decimal) handle {
	if n := len(ix.free); n > 0 {
		h := ix.free[n-1]
		ix.free = ix.free[:n-1]
		ix.nodes[h] = node{price: price, color: red}
		return h
	}
	ix.nodes = append(ix.nodes, node{price: price, color: red})
	return handle(len(ix.nodes) - 1)
}

func (ix *Index) release(h handle) {
	ix.nodes[h] = node{}
	ix.free = append(ix.free, h)
}

/******************** tree internals ********************/

func (ix *Index) upsertNode(price decimal.Decimal) handle {
	y := nilNode
	x := ix.root
	for x != nilNode {
		y = x
		switch price.Cmp(ix.nodes[x].price) {
		case -1:
			x = ix.nodes[x].left
		case 1:
			x = ix.nodes[x].right
		default:
			return x
		}
	}

	z := ix.alloc(price)
	ix.nodes[z].parent = y
	if y == nilNode {
		ix.root = z
	} else if price.Cmp(ix.nodes[y].price) < 0 {
		ix.nodes[y].left = z
	} else {
		ix.nodes[y].right = z
	}
	ix.insertFixup(z)
	return z
}

func (ix *Index) minNode(h handle) handle {
	if h == nilNode {
		return nilNode
	}
	for ix.nodes[h].left != nilNode {
		h = ix.nodes[h].left
	}
	return h
}

func (ix *Index) maxNode(h handle) handle {
	if h == nilNode {
		return nilNode
	}
	for ix.nodes[h].right != nilNode {
		h = ix.nodes[h].right
	}
	return h
}

func (ix *Index) successor(h handle) handle {
	if h == nilNode {
		return nilNode
	}
	if ix.nodes[h].right != nilNode {
		return ix.minNode(ix.nodes[h].right)
	}
	p := ix.nodes[h].parent
	for p != nilNode && h == ix.nodes[p].right {
		h = p
		p = ix.nodes[p].parent
	}
	return p
}

func (ix *Index) predecessor(h handle) handle {
	if h == nilNode {
		return nilNode
	}
	if ix.nodes[h].left != nilNode {
		return ix.maxNode(ix.nodes[h].left)
	}
	p := ix.nodes[h].parent
	for p != nilNode && h == ix.nodes[p].left {
		h = p
		p = ix.nodes[p].parent
	}
	return p
}

func (ix *Index) leftRotate(x handle) {
	y := ix.nodes[x].right
	ix.nodes[x].right = ix.nodes[y].left
	if ix.nodes[y].left != nilNode {
		ix.nodes[ix.nodes[y].left].parent = x
	}
	ix.nodes[y].parent = ix.nodes[x].parent
	if ix.nodes[x].parent == nilNode {
		ix.root = y
	} else if x == ix.nodes[ix.nodes[x].parent].left {
		ix.nodes[ix.nodes[x].parent].left = y
	} else {
		ix.nodes[ix.nodes[x].parent].right = y
	}
	ix.nodes[y].left = x
	ix.nodes[x].parent = y
}

func (ix *Index) rightRotate(y handle) {
	x := ix.nodes[y].left
	ix.nodes[y].left = ix.nodes[x].right
	if ix.nodes[x].right != nilNode {
		ix.nodes[ix.nodes[x].right].parent = y
	}
	ix.nodes[x].parent = ix.nodes[y].parent
	if ix.nodes[y].parent == nilNode {
		ix.root = x
	} else if y == ix.nodes[ix.nodes[y].parent].right {
		ix.nodes[ix.nodes[y].parent].right = x
	} else {
		ix.nodes[ix.nodes[y].parent].left = x
	}
	ix.nodes[x].right = y
	ix.nodes[y].parent = x
}

func (ix *Index) insertFixup(z handle) {
	for ix.nodes[ix.nodes[z].parent].color == red {
		parent := ix.nodes[z].parent
		grand := ix.nodes[parent].parent
		if parent == ix.nodes[grand].left {
			y := ix.nodes[grand].right
			if ix.nodes[y].color == red {
				ix.nodes[parent].color = black
				ix.nodes[y].color = black
				ix.nodes[grand].color = red
				z = grand
			} else {
				if z == ix.nodes[parent].right {
					z = parent
					ix.leftRotate(z)
					parent = ix.nodes[z].parent
					grand = ix.nodes[parent].parent
				}
				ix.nodes[parent].color = black
				ix.nodes[grand].color = red
				ix.rightRotate(grand)
			}
		} else {
			y := ix.nodes[grand].left
			if ix.nodes[y].color == red {
				ix.nodes[parent].color = black
				ix.nodes[y].color = black
				ix.nodes[grand].color = red
				z = grand
			} else {
				if z == ix.nodes[parent].left {
					z = parent
					ix.rightRotate(z)
					parent = ix.nodes[z].parent
					grand = ix.nodes[parent].parent
				}
				ix.nodes[parent].color = black
				ix.nodes[grand].color = red
				ix.leftRotate(grand)
			}
		}
	}
	ix.nodes[ix.root].color = black
}

func (ix *Index) transplant(u, v handle) {
	p := ix.nodes[u].parent
	if p == nilNode {
		ix.root = v
	} else if u == ix.nodes[p].left {
		ix.nodes[p].left = v
	} else {
		ix.nodes[p].right = v
	}
	ix.nodes[v].parent = p
}

func (ix *Index) deleteNode(z handle) {
	y := z
	yOrigColor := ix.nodes[y].color
	var x handle

	switch {
	case ix.nodes[z].left == nilNode:
		x = ix.nodes[z].right
		ix.transplant(z, ix.nodes[z].right)
	case ix.nodes[z].right == nilNode:
		x = ix.nodes[z].left
		ix.transplant(z, ix.nodes[z].left)
	default:
		y = ix.minNode(ix.nodes[z].right)
		yOrigColor = ix.nodes[y].color
		x = ix.nodes[y].right
		if ix.nodes[y].parent == z {
			ix.nodes[x].parent = y
		} else {
			ix.transplant(y, ix.nodes[y].right)
			ix.nodes[y].right = ix.nodes[z].right
			ix.nodes[ix.nodes[y].right].parent = y
		}
		ix.transplant(z, y)
		ix.nodes[y].left = ix.nodes[z].left
		ix.nodes[ix.nodes[y].left].parent = y
		ix.nodes[y].color = ix.nodes[z].color
	}

	if yOrigColor == black {
		ix.deleteFixup(x)
	}
	ix.release(z)

	// Deletion may leave stale pointers on the sentinel slot; they are
	// never read, but colors must stay fixed.
	ix.nodes[0].color = black
}

func (ix *Index) deleteFixup(x handle) {
	for x != ix.root && ix.nodes[x].color == black {
		p := ix.nodes[x].parent
		if x == ix.nodes[p].left {
			w := ix.nodes[p].right
			if ix.nodes[w].color == red {
				ix.nodes[w].color = black
				ix.nodes[p].color = red
				ix.leftRotate(p)
				p = ix.nodes[x].parent
				w = ix.nodes[p].right
			}
			if ix.nodes[ix.nodes[w].left].color == black && ix.nodes[ix.nodes[w].right].color == black {
				ix.nodes[w].color = red
				x = p
			} else {
				if ix.nodes[ix.nodes[w].right].color == black {
					ix.nodes[ix.nodes[w].left].color = black
					ix.nodes[w].color = red
					ix.rightRotate(w)
					p = ix.nodes[x].parent
					w = ix.nodes[p].right
				}
				ix.nodes[w].color = ix.nodes[p].color
				ix.nodes[p].color = black
				ix.nodes[ix.nodes[w].right].color = black
				ix.leftRotate(p)
				x = ix.root
			}
		} else {
			w := ix.nodes[p].left
			if ix.nodes[w].color == red {
				ix.nodes[w].color = black
				ix.nodes[p].color = red
				ix.rightRotate(p)
				p = ix.nodes[x].parent
				w = ix.nodes[p].left
			}
			if ix.nodes[ix.nodes[w].right].color == black && ix.nodes[ix.nodes[w].left].color == black {
				ix.nodes[w].color = red
				x = p
			} else {
				if ix.nodes[ix.nodes[w].left].color == black {
					ix.nodes[ix.nodes[w].right].color = black
					ix.nodes[w].color = red
					ix.leftRotate(w)
					p = ix.nodes[x].parent
					w = ix.nodes[p].left
				}
				ix.nodes[w].color = ix.nodes[p].color
				ix.nodes[p].color = black
				ix.nodes[ix.nodes[w].left].color = black
				ix.rightRotate(p)
				x = ix.root
			}
		}
	}
	ix.nodes[x].color = black
}
