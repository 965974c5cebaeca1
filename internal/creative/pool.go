package creative

import "sync"

// workerPool bounds concurrent AI creative review tasks so a burst of
// sync_creatives calls against an ai-powered tenant can't spawn unbounded
// goroutines. The submitting caller never waits for a task to finish; it
// waits only for queue space, as submit describes.
type workerPool struct {
	jobs chan func()
	wg   sync.WaitGroup
	once sync.Once
}

func newWorkerPool(workers int) *workerPool {
	p := &workerPool{jobs: make(chan func(), workers*4)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	return p
}

// submit enqueues job, blocking only if every worker and the queue buffer is
// already busy — it never drops work.
func (p *workerPool) submit(job func()) {
	p.jobs <- job
}

func (p *workerPool) close() {
	p.once.Do(func() { close(p.jobs) })
	p.wg.Wait()
}
