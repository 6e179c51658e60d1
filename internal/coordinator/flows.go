package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/filter"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/history"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/retry"
)

func (c *Coordinator) wishBirthdays(ctx context.Context, r *runState) error {
	contacts, err := c.d.Agent.FetchBirthdayContacts(ctx)
	if err != nil {
		return &abortError{err: &domain.AutomationError{Op: "fetch birthday contacts", Err: err}}
	}
	r.log.Info().Int("contacts", len(contacts)).Msg("birthday contacts fetched")

	// Actions are not interrupted by Cancel; it is honoured between contacts.
	act := context.WithoutCancel(ctx)
	for _, ct := range contacts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !ct.BirthdayToday {
			if err := c.skip(act, r, ct, domain.ReasonNotBirthdayToday); err != nil {
				return err
			}
			continue
		}
		now := c.now()
		past, err := c.pastActions(act, ct.ID, domain.ActionWishSent, r.filter.Since(filter.FlowWish, now))
		if err != nil {
			return err
		}
		if d := r.filter.Decide(ct, filter.FlowWish, past, now); !d.Admit {
			if err := c.skip(act, r, ct, d.Reason); err != nil {
				return err
			}
			continue
		}

		out := c.d.Retry.Execute(act, r.task.name, c.stateChanging(r, func(ctx context.Context) error {
			if err := c.d.Agent.SendWish(ctx, ct); err != nil {
				return &domain.AutomationError{Op: "send wish", Contact: ct.ID, Err: err}
			}
			return nil
		}))
		if err := c.settle(act, r, ct, out, domain.ActionWishSent, ct.MessageLanguage); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) replyToWishes(ctx context.Context, r *runState) error {
	msgs, err := c.d.Agent.FetchUnreadMessages(ctx)
	if err != nil {
		return &abortError{err: &domain.AutomationError{Op: "fetch unread messages", Err: err}}
	}
	r.log.Info().Int("messages", len(msgs)).Msg("unread messages fetched")

	act := context.WithoutCancel(ctx)
	replied := 0
	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		ct := m.Contact
		if replied >= c.d.MaxRepliesPerRun {
			if err := c.skip(act, r, ct, domain.ReasonReplyLimit); err != nil {
				return err
			}
			continue
		}

		now := c.now()
		past, err := c.pastActions(act, ct.ID, domain.ActionReplySent, r.filter.Since(filter.FlowReply, now))
		if err != nil {
			return err
		}
		if d := r.filter.Decide(ct, filter.FlowReply, past, now); !d.Admit {
			if err := c.skip(act, r, ct, d.Reason); err != nil {
				return err
			}
			continue
		}

		res := c.d.Classifier.Classify(m.Text)
		if !res.IsWish {
			if err := c.skip(act, r, ct, domain.ReasonNotAWish); err != nil {
				return err
			}
			continue
		}

		text := c.d.Replies.Write(act, m, res.Language)
		r.log.Debug().Str("contact", ct.ID).Str("language", res.Language).Str("reply", text).Msg("reply composed")
		out := c.d.Retry.Execute(act, r.task.name, c.stateChanging(r, func(ctx context.Context) error {
			if err := c.d.Agent.SendReply(ctx, m, text); err != nil {
				return &domain.AutomationError{Op: "send reply", Contact: ct.ID, Err: err}
			}
			return nil
		}))
		if out.Succeeded {
			replied++
		}
		if err := c.settle(act, r, ct, out, domain.ActionReplySent, res.Language); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) followerCheck(ctx context.Context, r *runState) error {
	if c.d.FollowerProfile == "" {
		return errors.New("no follower profile configured")
	}
	var count int
	out := c.d.Retry.Execute(ctx, r.task.name, func(ctx context.Context) (string, error) {
		n, err := c.d.Agent.FetchFollowerCount(ctx, c.d.FollowerProfile)
		if err != nil {
			return "", &domain.AutomationError{Op: "fetch follower count", Contact: c.d.FollowerProfile, Err: err}
		}
		count = n
		return fmt.Sprintf("%d followers", n), nil
	})
	if err := c.recordAttempts(context.WithoutCancel(ctx), r, c.d.FollowerProfile, out); err != nil {
		return err
	}
	if !out.Succeeded {
		return out.LastError
	}
	r.run.Result = out.Result
	r.log.Info().Str("profile", c.d.FollowerProfile).Int("followers", count).Msg("follower count fetched")
	return nil
}

// stateChanging wraps a platform mutation so that dry runs never reach it.
func (c *Coordinator) stateChanging(r *runState, fn func(ctx context.Context) error) retry.Work {
	return func(ctx context.Context) (string, error) {
		if r.settings.DryRun {
			return "", nil
		}
		return "", fn(ctx)
	}
}

// pastActions returns records of kind for contact since the given instant,
// live and dry-run alike; the filter weighs them against the run's mode.
func (c *Coordinator) pastActions(ctx context.Context, contact string, kind domain.ActionKind, since time.Time) ([]domain.ActionRecord, error) {
	return c.d.History.Query(ctx, history.Filter{
		Contact: contact,
		Kinds:   []domain.ActionKind{kind},
		Since:   since,
	})
}

func (c *Coordinator) skip(ctx context.Context, r *runState, ct domain.Contact, reason domain.SkipReason) error {
	why := string(reason)
	r.log.Info().Str("contact", ct.ID).Str("reason", why).Msg("contact skipped")
	r.run.Skipped++
	return c.append(ctx, r, ct, domain.ActionSkipped, &why, "")
}

// settle folds a retried action into history and the run tally.
func (c *Coordinator) settle(ctx context.Context, r *runState, ct domain.Contact, out domain.TaskOutcome, kind domain.ActionKind, lang string) error {
	if err := c.recordAttempts(ctx, r, ct.ID, out); err != nil {
		return err
	}
	if out.Succeeded {
		r.run.Sent++
		r.sent = append(r.sent, displayName(ct))
		r.log.Info().Str("contact", ct.ID).Int("attempts", out.AttemptCount).Msg(string(kind))
		return c.append(ctx, r, ct, kind, nil, lang)
	}

	why := "unknown error"
	if out.LastError != nil {
		why = out.LastError.Error()
	}
	r.run.Failed++
	r.log.Error().Str("contact", ct.ID).Int("attempts", out.AttemptCount).Str("error", why).Msg("action failed")
	return c.append(ctx, r, ct, domain.ActionFailed, &why, lang)
}

func (c *Coordinator) append(ctx context.Context, r *runState, ct domain.Contact, kind domain.ActionKind, reason *string, lang string) error {
	return c.d.History.Append(ctx, domain.ActionRecord{
		RunID:     r.run.ID,
		Contact:   ct.ID,
		Kind:      kind,
		Reason:    reason,
		TaskName:  r.task.name,
		Language:  lang,
		DryRun:    r.settings.DryRun,
		CreatedAt: c.now(),
	})
}

func (c *Coordinator) recordAttempts(ctx context.Context, r *runState, contact string, out domain.TaskOutcome) error {
	var attempts []domain.Attempt
	for i, err := range out.Errors {
		if i >= out.AttemptCount {
			break
		}
		attempts = append(attempts, domain.Attempt{
			RunID:     r.run.ID,
			TaskName:  r.task.name,
			Contact:   contact,
			Attempt:   i + 1,
			Error:     err.Error(),
			CreatedAt: c.now(),
		})
	}
	return c.d.History.RecordAttempts(ctx, attempts)
}

func displayName(ct domain.Contact) string {
	if ct.Name != "" {
		return ct.Name
	}
	return ct.ID
}
