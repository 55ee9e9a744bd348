package merge

// tokenHeap orders shard parsers by their current (token id, doc id)
// pair. It is the outer priority queue of spec.md §4.5's two-level merge:
// the parser holding the globally smallest token is always popped first.
type tokenHeap []*shardParser

func (h tokenHeap) Len() int { return len(h) }
func (h tokenHeap) Less(i, j int) bool {
	if h[i].token() != h[j].token() {
		return h[i].token() < h[j].token()
	}
	return h[i].doc().docID < h[j].doc().docID
}
func (h tokenHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *tokenHeap) Push(x interface{}) { *h = append(*h, x.(*shardParser)) }
func (h *tokenHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// docHeap orders the shard parsers currently contributing to one token
// block by their current doc id. It is the inner priority queue: while
// the outer heap groups parsers by token, this one merges their doc
// sub-blocks into ascending doc-id order.
type docHeap []*shardParser

func (h docHeap) Len() int            { return len(h) }
func (h docHeap) Less(i, j int) bool  { return h[i].doc().docID < h[j].doc().docID }
func (h docHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *docHeap) Push(x interface{}) { *h = append(*h, x.(*shardParser)) }
func (h *docHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
