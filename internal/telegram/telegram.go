// Package telegram binds the orchestrator to the Telegram transport. It
// only maps transport messages to bot events and replies back; all
// decisions live behind the Dispatcher.
package telegram

import (
	"bytes"
	"io"
	"log/slog"

	tele "gopkg.in/telebot.v3"

	"github.com/mikhailstasyuk/medtesthelper-bot/internal/bot"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/common"
)

type Bot struct {
	tb         *tele.Bot
	dispatcher *bot.Dispatcher
	logger     *slog.Logger
}

func New(cfg common.TelegramConfig, dispatcher *bot.Dispatcher, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, err
	}

	b := &Bot{tb: tb, dispatcher: dispatcher, logger: logger}
	tb.Handle(tele.OnText, b.onText)
	tb.Handle(tele.OnDocument, b.onDocument)
	tb.Handle(tele.OnPhoto, b.onPhoto)
	return b, nil
}

// Start begins long polling and blocks until Stop is called.
func (b *Bot) Start() {
	b.logger.Info("telegram polling started")
	b.tb.Start()
}

func (b *Bot) Stop() {
	b.tb.Stop()
	b.dispatcher.Shutdown()
}

func (b *Bot) onText(c tele.Context) error {
	sender := c.Sender()
	b.dispatcher.Submit(bot.Event{
		UserID:   sender.ID,
		Username: sender.FirstName,
		Text:     c.Text(),
	}, b.deliverTo(sender))
	return nil
}

func (b *Bot) onDocument(c tele.Context) error {
	sender := c.Sender()
	doc := c.Message().Document

	rc, err := b.tb.File(&doc.File)
	if err != nil {
		b.logger.Error("file download failed", "user_id", sender.ID, "error", err)
		return c.Send("Не удалось загрузить файл. Попробуйте ещё раз.")
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		b.logger.Error("file read failed", "user_id", sender.ID, "error", err)
		return c.Send("Не удалось загрузить файл. Попробуйте ещё раз.")
	}

	b.dispatcher.Submit(bot.Event{
		UserID:   sender.ID,
		Username: sender.FirstName,
		File: &bot.File{
			Data: data,
			Name: doc.FileName,
			MIME: doc.MIME,
		},
	}, b.deliverTo(sender))
	return nil
}

// onPhoto nudges users to resend as a document: Telegram recompresses
// photos, which destroys the resolution the quality gate needs.
func (b *Bot) onPhoto(c tele.Context) error {
	return c.Send("Пожалуйста, прикрепите PNG или JPEG как документ, а не как фото.")
}

func (b *Bot) deliverTo(user *tele.User) func([]bot.Reply) {
	return func(replies []bot.Reply) {
		for _, r := range replies {
			var err error
			if len(r.Document) > 0 {
				_, err = b.tb.Send(user, &tele.Document{
					File:     tele.FromReader(bytes.NewReader(r.Document)),
					FileName: r.DocumentName,
				})
			} else if r.Text != "" {
				_, err = b.tb.Send(user, r.Text)
			}
			if err != nil {
				b.logger.Error("reply send failed", "user_id", user.ID, "error", err)
			}
		}
	}
}
