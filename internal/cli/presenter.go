package cli

import (
	"fmt"
	"io"

	"github.com/fmueller/voicebox/internal/memo"
	"github.com/fmueller/voicebox/internal/store"
)

// consolePresenter renders lifecycle notices on stderr so stdout stays
// reserved for transcripts and listings.
type consolePresenter struct {
	out io.Writer
}

func newConsolePresenter(out io.Writer) *consolePresenter {
	return &consolePresenter{out: out}
}

func (p *consolePresenter) SessionStateChanged(memo.SessionState) {}

func (p *consolePresenter) RecordingUpdated(store.Recording) {}

func (p *consolePresenter) RecordingsChanged() {}

func (p *consolePresenter) Notice(message string) {
	fmt.Fprintln(p.out, message)
}
