package room

// Mailbox serializes access to a Room on a single goroutine, the way the
// teacher's ws.Hub.Run() select loop serializes access to hub state —
// generalized here from a fixed set of channel cases to a channel of
// closures, since the Room's message variety (commands, topology changes,
// watcher events) is open-ended per spec.md §4.5/§5.
type Mailbox struct {
	tasks chan func()
	done  chan struct{}
}

// NewMailbox starts the worker goroutine immediately; Close stops it.
func NewMailbox() *Mailbox {
	m := &Mailbox{
		tasks: make(chan func(), 256),
		done:  make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Mailbox) run() {
	for {
		select {
		case fn := <-m.tasks:
			fn()
		case <-m.done:
			// Drain whatever is already queued before exiting, so a
			// shutdown enqueued just before Close still runs.
			for {
				select {
				case fn := <-m.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Submit enqueues fn to run on the Room's single goroutine and blocks until
// it has run, mirroring the teacher's synchronous registerSync pattern —
// every caller observes a fully up-to-date Room afterward.
func (m *Mailbox) Submit(fn func()) {
	done := make(chan struct{})
	m.tasks <- func() {
		fn()
		close(done)
	}
	<-done
}

// Close stops accepting new work after draining what's already queued.
func (m *Mailbox) Close() {
	close(m.done)
}
