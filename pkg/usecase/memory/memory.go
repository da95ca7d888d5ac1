// Package memory is the entry point for the capture and query collaborators.
package memory

import (
	"context"
	"time"

	"github.com/m-mizutani/omoide/pkg/interfaces"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/repository"
	"github.com/m-mizutani/omoide/pkg/usecase/answer"
	"github.com/m-mizutani/omoide/pkg/utils/logging"
)

// UnknownLocation is stored when the locator fails
const UnknownLocation = "Unable to determine current location."

// Asker answers questions; *answer.Answerer implements it
type Asker interface {
	Ask(ctx context.Context, question string) *answer.Result
}

// UseCase provides memory capture and recall
type UseCase struct {
	repo    repository.Repository
	asker   Asker
	locator interfaces.Locator
	now     func() time.Time
}

// Option is a functional option for UseCase
type Option func(*UseCase)

func WithAsker(a Asker) Option {
	return func(uc *UseCase) {
		uc.asker = a
	}
}

func WithLocator(l interfaces.Locator) Option {
	return func(uc *UseCase) {
		uc.locator = l
	}
}

// WithClock replaces the clock that stamps captured entries
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) {
		uc.now = now
	}
}

// New creates a new memory UseCase instance
func New(repo repository.Repository, opts ...Option) *UseCase {
	uc := &UseCase{
		repo: repo,
		now:  time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// AddToDB records description as happening now at the current location. The bool
// reports whether the entry was stored; failures are already logged.
func (u *UseCase) AddToDB(ctx context.Context, description string) (*model.Entry, bool) {
	entry := &model.Entry{
		Time:        u.now().Format(time.RFC3339),
		Location:    u.locate(ctx),
		Description: description,
	}

	added, err := u.repo.AddEntry(ctx, entry)
	if err != nil {
		logging.From(ctx).Error("failed to store memory", "error", err)
		return nil, false
	}

	return added, true
}

func (u *UseCase) locate(ctx context.Context) string {
	if u.locator == nil {
		return UnknownLocation
	}

	loc, err := u.locator.Locate(ctx)
	if err != nil {
		logging.From(ctx).Warn("failed to determine location", "error", err)
		return UnknownLocation
	}
	return loc
}

// Ask answers question from stored memories. The answer is always set.
func (u *UseCase) Ask(ctx context.Context, question string) *answer.Result {
	if u.asker == nil {
		return &answer.Result{
			State:  answer.StateFailed,
			Answer: "Error answering question: no language model is configured",
		}
	}
	return u.asker.Ask(ctx, question)
}
