package crawler

type frontierItem struct {
	url   string
	depth int
}

// crawlState is the frontier and visited set of one traversal. It is owned by a
// single Run call and never shared.
type crawlState struct {
	frontier []frontierItem
	head     int
	visited  map[string]struct{}
}

func newCrawlState() *crawlState {
	return &crawlState{visited: make(map[string]struct{})}
}

// enqueue marks url visited and appends it. It reports false when url was
// already seen.
func (s *crawlState) enqueue(url string, depth int) bool {
	if _, ok := s.visited[url]; ok {
		return false
	}
	s.visited[url] = struct{}{}
	s.frontier = append(s.frontier, frontierItem{url: url, depth: depth})
	return true
}

func (s *crawlState) dequeue() (frontierItem, bool) {
	if s.head >= len(s.frontier) {
		return frontierItem{}, false
	}
	item := s.frontier[s.head]
	s.frontier[s.head] = frontierItem{}
	s.head++
	if s.head == len(s.frontier) {
		s.frontier = s.frontier[:0]
		s.head = 0
	}
	return item, true
}

func (s *crawlState) visitedCount() int {
	return len(s.visited)
}
