package scrape

import "github.com/JakeFAU/kgr-crawler/internal/keyword"

// WorkItem is one pending (keyword, search type) query.
type WorkItem struct {
	Keyword    string
	SearchType keyword.SearchType
	// Attempt counts how many times the query has been issued.
	Attempt int
	// slot is the item's position in the batch output.
	slot int
}

// RetryQueue holds first-pass failures in the order they occurred.
type RetryQueue struct {
	items []WorkItem
}

// Push appends an item.
func (q *RetryQueue) Push(item WorkItem) {
	q.items = append(q.items, item)
}

// Pop removes and returns the oldest item.
func (q *RetryQueue) Pop() (WorkItem, bool) {
	if len(q.items) == 0 {
		return WorkItem{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Len reports the number of pending items.
func (q *RetryQueue) Len() int {
	return len(q.items)
}

// Items returns a copy of the pending items.
func (q *RetryQueue) Items() []WorkItem {
	return append([]WorkItem(nil), q.items...)
}
