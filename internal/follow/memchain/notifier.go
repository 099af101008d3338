package memchain

import (
	"sync"

	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
	"github.com/lightningnetwork/lnd/queue"
)

const subscriberBufferSize = 20

// notifier fans chain mutations out to subscribers. Every subscriber owns an
// unbounded queue, so publishing never waits on a slow reader.
type notifier struct {
	mu           sync.Mutex
	nextID       uint64
	connected    map[uint64]*subscriber[model.BlockHeader]
	disconnected map[uint64]*subscriber[model.BlockHeader]
	forks        map[uint64]*subscriber[model.Block]
}

func newNotifier() *notifier {
	return &notifier{
		connected:    make(map[uint64]*subscriber[model.BlockHeader]),
		disconnected: make(map[uint64]*subscriber[model.BlockHeader]),
		forks:        make(map[uint64]*subscriber[model.Block]),
	}
}

func (n *notifier) publish(result AddResult, block model.Block) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, header := range result.Disconnected {
		deliver(n.disconnected, header)
	}
	for _, header := range result.Connected {
		deliver(n.connected, header)
	}
	if result.Fork {
		deliver(n.forks, block)
	}
}

func deliver[T any](subs map[uint64]*subscriber[T], item T) {
	for _, sub := range subs {
		sub.queue.ChanIn() <- item
	}
}

type subscriber[T any] struct {
	queue *queue.ConcurrentQueue
	quit  chan struct{}
	wg    sync.WaitGroup
}

func subscribe[T any](n *notifier, subs map[uint64]*subscriber[T]) (<-chan T, func()) {
	sub := &subscriber[T]{
		queue: queue.NewConcurrentQueue(subscriberBufferSize),
		quit:  make(chan struct{}),
	}
	sub.queue.Start()

	updates := make(chan T)
	sub.wg.Add(1)
	go sub.proxy(updates)

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	subs[id] = sub
	n.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			// Unregister first so publish never sends into a stopped queue.
			n.mu.Lock()
			delete(subs, id)
			n.mu.Unlock()

			close(sub.quit)
			sub.queue.Stop()
			sub.wg.Wait()
		})
	}
	return updates, cancel
}

func (s *subscriber[T]) proxy(updates chan<- T) {
	defer s.wg.Done()
	defer close(updates)

	for {
		select {
		case item, ok := <-s.queue.ChanOut():
			if !ok {
				return
			}
			select {
			case updates <- item.(T):
			case <-s.quit:
				return
			}
		case <-s.quit:
			return
		}
	}
}
