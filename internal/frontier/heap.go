package frontier

import "github.com/nao1215/darkcrawl/internal/model"

// candidateHeap orders candidates by priority, highest first, and by
// admission sequence, oldest first, among equal priorities.
// It implements container/heap.Interface.
type candidateHeap []model.Candidate

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].Seq < h[j].Seq
}

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) {
	*h = append(*h, x.(model.Candidate))
}

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = model.Candidate{}
	*h = old[:n-1]
	return c
}
