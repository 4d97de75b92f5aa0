// Package bag provides a blocking, predicate-searchable concurrent collection.
//
// A [Bag] lets one reader goroutine draining a link deposit arbitrary items
// while any number of waiters block until an item matching their predicate
// arrives. Each entry is delivered to at most one waiter.
//
//	replies := bag.New[protocol.Message]()
//	go func() { replies.Add(msg) }()
//	msg, ok := replies.TryRemove(func(m protocol.Message) bool {
//	    return isAckFor(m, seq)
//	}, time.Second)
//
// Items nobody claims stay in the bag until a later waiter takes them, they
// are drained with [Bag.RemoveAll] or [Bag.Clear], or the bag reaches its
// capacity and evicts the oldest entry.
package bag
