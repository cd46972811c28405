package scheduler

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/traverse"
	"v.io/x/lib/vlog"

	"github.com/esdm-project/esdm-go/backend"
)

// Mkfs initializes the storage target of every registered backend whose
// DataAccessibility matches target (grounded on the original middleware's
// esdm_mkfs()/esdm-scheduler.c, which iterates backend configs and calls
// each backend's create-target hook only for the requested accessibility
// class — §6's "mkfs(enforce, target)"). Each matching backend's
// MkfsTarget is run concurrently via traverse.Each, a one-shot bounded
// fan-out that's adequate here since mkfs runs once at filesystem-creation
// time, not on the hot read/write path where a persistent pool
// (backend.Pool) is used instead.
//
// Every matching backend is attempted even if another fails; errors are
// latched with errors.Once (the teacher's latch-first-error-under-mutex
// idiom, see encoding/pam.Writer's use of the same type) and the first one
// observed is returned.
//
// enforce, when true, asks a backend to recreate its target even if one
// already exists (wiping prior contents); when false, an existing target is
// left alone and only missing ones are created.
func (s *Scheduler) Mkfs(ctx context.Context, enforce bool, target backend.Accessibility) error {
	s.mu.Lock()
	targets := make([]MkfsTarget, 0, len(s.backends))
	for _, b := range s.backends {
		if b.Config().DataAccessibility != target {
			continue
		}
		if mt, ok := b.(MkfsTarget); ok {
			targets = append(targets, mt)
		}
	}
	s.mu.Unlock()

	if len(targets) == 0 {
		return nil
	}
	var latch errors.Once
	_ = traverse.Each(len(targets), func(i int) error {
		b := targets[i]
		vlog.Infof("scheduler: mkfs backend %s (enforce=%v, target=%v)", b.(backend.Backend).ID(), enforce, target)
		latch.Set(b.MkfsTarget(ctx, enforce))
		return nil
	})
	return latch.Err()
}

// MkfsTarget is implemented by backends whose storage target needs explicit
// creation (e.g. a directory tree or a bucket), as opposed to membackend
// which has nothing to create.
type MkfsTarget interface {
	MkfsTarget(ctx context.Context, enforce bool) error
}
