package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/gosuri/uiprogress"

	"omop-lite/internal/engine"
)

// barProgress shows one bar step per loaded file.
type barProgress struct {
	out      io.Writer
	progress *uiprogress.Progress
	bar      *uiprogress.Bar

	mu    sync.Mutex
	table string
}

func newBarProgress(out io.Writer) *barProgress {
	return &barProgress{out: out}
}

func (p *barProgress) Start(total int) {
	if total == 0 {
		return
	}
	p.progress = uiprogress.New()
	p.progress.SetOut(p.out)
	p.progress.Start()

	p.bar = p.progress.AddBar(total).AppendCompleted().PrependElapsed()
	p.bar.PrependFunc(func(b *uiprogress.Bar) string {
		return fmt.Sprintf("Loading %d/%d", b.Current(), total)
	})
	p.bar.AppendFunc(func(b *uiprogress.Bar) string {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.table
	})
}

func (p *barProgress) Step(job *engine.LoadJob) {
	if p.bar == nil {
		return
	}
	p.mu.Lock()
	p.table = job.Table
	if job.Failed() {
		p.table += " (failed)"
	}
	p.mu.Unlock()
	p.bar.Incr()
}

func (p *barProgress) Stop() {
	if p.progress != nil {
		p.progress.Stop()
	}
}
