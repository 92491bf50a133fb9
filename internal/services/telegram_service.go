package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramService pings the admin chat when a buyer uploads payment proof.
type TelegramService struct {
	botToken    string
	adminChatID string
	apiBase     string
	client      *http.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		apiBase:     telegramAPIBase,
		client:      http.DefaultClient,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		log.Println("[Telegram] Admin chat ID not configured")
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// FormatPrice formats an amount with thousand separators.
func FormatPrice(amount int64, currency string) string {
	if currency == "" {
		currency = "IDR"
	}
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	str := fmt.Sprintf("%d", amount)

	var result strings.Builder
	length := len(str)
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}

	return currency + " " + sign + result.String()
}

// ProofUploaded tells the admin chat a transaction awaits confirmation.
func (s *TelegramService) ProofUploaded(ctx context.Context, notice TransactionNotice) error {
	if s.adminChatID == "" {
		return nil
	}

	message := fmt.Sprintf(`<b>🧾 PAYMENT PROOF UPLOADED</b>
<b>Invoice:</b> %s
<b>Event:</b> %s
<b>Buyer:</b> %s (%s)
<b>Tickets:</b> %d x %s
<b>Total:</b> %s
<b>Proof:</b> %s
━━━━━━━━━━━━━━━━━━`,
		notice.InvoiceNumber,
		notice.EventName,
		notice.BuyerName,
		notice.BuyerEmail,
		notice.TicketQuantity,
		strings.Join(notice.TicketTypes, ", "),
		FormatPrice(notice.TotalAmount, ""),
		notice.ProofURL,
	)

	return s.SendToAdmin(ctx, strings.TrimSpace(message))
}

// TransactionAccepted is not sent to Telegram.
func (s *TelegramService) TransactionAccepted(ctx context.Context, notice TransactionNotice) error {
	return nil
}

// TransactionRejected is not sent to Telegram.
func (s *TelegramService) TransactionRejected(ctx context.Context, notice TransactionNotice) error {
	return nil
}
