package frontier

import "github.com/nao1215/politecrawl/internal/model"

// taskHeap implements heap.Interface over the tasks of one domain.
type taskHeap []model.CrawlTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	return before(&h[i], &h[j])
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(model.CrawlTask)) //nolint:forcetypeassert // only CrawlTask is pushed
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = model.CrawlTask{}
	*h = old[:n-1]
	return t
}

// before orders tasks by priority descending, then by sequence ascending.
func before(a, b *model.CrawlTask) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Seq < b.Seq
}
