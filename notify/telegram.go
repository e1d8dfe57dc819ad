package notify

import (
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chorepoints/database"
	"chorepoints/models"
)

// TelegramDispatcher sends events to the recipient's Telegram chat when the
// user has linked one. Delivery runs on a goroutine per event; errors are
// logged and dropped.
type TelegramDispatcher struct {
	bot *tgbotapi.BotAPI
}

func NewTelegramDispatcher(token string) (*TelegramDispatcher, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramDispatcher{bot: bot}, nil
}

func (d *TelegramDispatcher) Dispatch(ev Event) {
	go func() {
		var user models.User
		if err := database.DB.Select("chat_id").First(&user, ev.UserID).Error; err != nil {
			log.Printf("[notify] lookup user %d: %v", ev.UserID, err)
			return
		}
		if user.ChatID == nil {
			return
		}
		msg := tgbotapi.NewMessage(*user.ChatID, ev.Message)
		if _, err := d.bot.Send(msg); err != nil {
			log.Printf("[notify] telegram send to user %d: %v", ev.UserID, err)
		}
	}()
}
