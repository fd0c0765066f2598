package spread

// nodeQueue - FIFO-очередь на кольцевом буфере
type nodeQueue struct {
	buf  []Node
	head int
	n    int
}

func newNodeQueue(capacity int) *nodeQueue {
	if capacity < 16 {
		capacity = 16
	}
	return &nodeQueue{buf: make([]Node, capacity)}
}

func (q *nodeQueue) len() int { return q.n }

func (q *nodeQueue) push(node Node) {
	if q.n == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.n)%len(q.buf)] = node
	q.n++
}

func (q *nodeQueue) pop() (Node, bool) {
	if q.n == 0 {
		return Node{}, false
	}
	node := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return node, true
}

// grow удваивает буфер, сохраняя порядок элементов
func (q *nodeQueue) grow() {
	next := make([]Node, len(q.buf)*2)
	for i := 0; i < q.n; i++ {
		next[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = next
	q.head = 0
}
