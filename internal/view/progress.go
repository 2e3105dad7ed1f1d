package view

import (
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Progress is an indeterminate spinner shown while a command runs.
type Progress struct {
	bar  *progressbar.ProgressBar
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// StartProgress starts spinning on w with a description. A nil Progress is
// returned for writers which are not terminals unless force is set, all
// methods of a nil Progress are no-ops.
func StartProgress(w io.Writer, description string, force bool) *Progress {
	if !force && !isTerminal(w) {
		return nil
	}
	p := &Progress{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetElapsedTime(true),
			progressbar.OptionClearOnFinish(),
		),
		stop: make(chan struct{}),
	}
	p.wg.Go(p.spin)
	return p
}

func (p *Progress) spin() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			_ = p.bar.Add(1)
		}
	}
}

// Describe changes the description, e.g. to the last output line.
func (p *Progress) Describe(description string) {
	if p == nil {
		return
	}
	p.bar.Describe(description)
}

// Stop stops and clears the spinner. It is safe to call it more than once.
func (p *Progress) Stop() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		close(p.stop)
		p.wg.Wait()
		_ = p.bar.Finish()
	})
}
