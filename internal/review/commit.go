package review

import (
	"github.com/sprite-ai/agstage/internal/logging"
	"github.com/sprite-ai/agstage/internal/model"
)

// Committer applies a decision to the original document.
type Committer struct {
	host   Host
	stager Staging
	log    *logging.Logger
}

// NewCommitter creates a Committer.
func NewCommitter(h Host, s Staging, log *logging.Logger) *Committer {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Committer{host: h, stager: s, log: log}
}

// Accept replaces target with the staged content and then removes the
// artifact. If the write fails the artifact is left in place.
func (c *Committer) Accept(target string, sc model.StagedChange) *Error {
	data, err := c.stager.Read(sc)
	if err != nil {
		return newError(model.KindCommitIO, sc.StagingPath, "reading staged content", err)
	}
	if err := c.host.WriteText(target, string(data)); err != nil {
		return newError(model.KindCommitIO, target, "writing target", err)
	}

	if err := c.stager.Remove(sc); err != nil {
		c.log.Warn("failed to remove staged artifact after commit",
			"staging", sc.StagingPath, "error", err.Error())
	}

	if c.host.IsOpen(target) {
		if err := c.host.CloseIfOpen(target); err != nil {
			c.log.Warn("failed to close stale buffer", "target", target, "error", err.Error())
			return nil
		}
		if err := c.host.OpenOrFocus(target); err != nil {
			c.log.Warn("failed to reopen buffer", "target", target, "error", err.Error())
		}
	}
	return nil
}

// Reject removes the staged artifact. The original is never touched.
func (c *Committer) Reject(sc model.StagedChange) {
	if err := c.stager.Remove(sc); err != nil {
		c.log.Warn("failed to remove staged artifact after reject",
			"staging", sc.StagingPath, "error", err.Error())
	}
}
