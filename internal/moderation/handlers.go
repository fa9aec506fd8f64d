package moderation

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgard/moderabot/internal/classifier"
	"github.com/edgard/moderabot/internal/database"
	"github.com/edgard/moderabot/internal/telegram"
	"github.com/edgard/moderabot/internal/text"
)

func (c *chatRun) menu(h database.Handler, run *messageRun) {
	keyboard, err := telegram.DecodeKeyboard(h.Code)
	if err != nil {
		c.log.Error("Failed to decode menu keyboard", "handler_id", h.ID, "message_id", run.msg.ID, "error", err)
		return
	}
	label := h.Text
	if label == "" {
		label = c.engine.messages.MenuLabel
	}
	run.send(func(ctx context.Context) {
		c.notifier.Menu(ctx, c.chat.ExternalID, keyboard, label)
	})
}

func (c *chatRun) sendQuiz(run *messageRun) {
	quiz := c.engine.quiz
	run.send(func(ctx context.Context) {
		c.notifier.Quiz(ctx, c.chat.ExternalID, quiz.Question, quiz.Options, quiz.CorrectIndex)
	})
}

func (c *chatRun) reply(run *messageRun, text string) {
	replyTo := int(run.msg.ExternalID)
	run.send(func(ctx context.Context) {
		c.notifier.Reply(ctx, c.chat.ExternalID, replyTo, text)
	})
}

// checkToxicity handles a report: the trigger message replies to the reported
// one. The first failing precondition answers the reporter and stops; only a
// classifier verdict changes the ledgers and the verified flag.
func (c *chatRun) checkToxicity(ctx context.Context, run *messageRun) error {
	msgs := c.engine.messages
	log := c.log.With("message_id", run.msg.ID, "reply_to_external_id", run.msg.ReplyToExternalID)

	target, err := c.engine.store.MessageByExternalID(ctx, c.chat.ID, run.msg.ReplyToExternalID)
	if errors.Is(err, database.ErrNotFound) {
		c.reply(run, msgs.TargetNotFound)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load reported message: %w", err)
	}

	if c.engine.now().Sub(target.SentAt) > ReportWindow {
		c.reply(run, msgs.WindowExpired)
		return nil
	}

	if target.VerifiedOnToxics || run.outcome.VerifyMessageID == target.ID {
		c.reply(run, msgs.AlreadyChecked)
		return nil
	}

	author, err := c.engine.store.UserByID(ctx, target.FromUserID)
	if errors.Is(err, database.ErrNotFound) {
		c.reply(run, msgs.TargetNotFound)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load reported author: %w", err)
	}
	if author.IsBot {
		c.reply(run, msgs.CannotReportBot)
		return nil
	}

	reporterID := run.msg.FromUserID
	if author.ID == reporterID {
		c.reply(run, msgs.CannotSelfReport)
		return nil
	}

	content := text.Normalize(target.Text + "\n" + target.Caption)
	if content == "" {
		c.reply(run, msgs.NothingToCheck)
		return nil
	}

	verdict, err := c.engine.classifier.Classify(ctx, c.bot.ClassifierAPIKey, content)
	if err != nil {
		log.WarnContext(ctx, "Toxicity check failed", "target_message_id", target.ID, "error", err)
		c.reply(run, msgs.CheckFailed)
		return nil
	}

	switch verdict {
	case classifier.VerdictToxic:
		run.adjust(database.LedgerToxic, author.ID, c.chat.ID, 1)
		run.adjust(database.LedgerKPI, reporterID, c.chat.ID, 1)
		c.reply(run, msgs.ReportCredited)
	case classifier.VerdictSafe:
		run.adjust(database.LedgerToxic, reporterID, c.chat.ID, 1)
		run.adjust(database.LedgerKPI, reporterID, c.chat.ID, -1)
		c.reply(run, msgs.ReportPenalized)
	default:
		log.WarnContext(ctx, "Unknown verdict", "verdict", verdict)
		c.reply(run, msgs.CheckFailed)
		return nil
	}
	run.outcome.VerifyMessageID = target.ID

	log.InfoContext(ctx, "Report checked",
		"target_message_id", target.ID,
		"author_id", author.ID,
		"reporter_id", reporterID,
		"verdict", verdict)
	return nil
}
