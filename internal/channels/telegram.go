package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"deepresearch/internal/research"

	"github.com/google/uuid"
)

const (
	telegramAPIBase      = "https://api.telegram.org/bot%s"
	telegramSendMsg      = "/sendMessage"
	telegramChatAction   = "/sendChatAction"
	telegramActionTyping = "typing"

	// Telegram rejects longer messages.
	telegramMaxMessage = 4096

	defaultReplyTimeout = 10 * time.Minute
)

type TelegramOption func(*Telegram)

// WithAPIURL points the channel at a different Bot API host.
func WithAPIURL(url string) TelegramOption {
	return func(t *Telegram) { t.apiURL = url }
}

func WithHTTPClient(c *http.Client) TelegramOption {
	return func(t *Telegram) { t.client = c }
}

// WithReplyTimeout bounds the research and reply for one message.
func WithReplyTimeout(d time.Duration) TelegramOption {
	return func(t *Telegram) { t.replyTimeout = d }
}

// Telegram answers research questions sent to a bot. Every chat gets its
// own session with repeat detection. Updates are acknowledged at once and
// handled in the background, in arrival order per chat.
type Telegram struct {
	researcher   *research.Researcher
	archive      research.Archive
	allowedUsers []int64
	apiURL       string
	client       *http.Client
	replyTimeout time.Duration

	mu       sync.Mutex
	sessions map[int64]*research.Session
	queues   map[int64][]string
	wg       sync.WaitGroup
}

func NewTelegram(botToken string, allowedUsers []int64, researcher *research.Researcher, archive research.Archive, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		researcher:   researcher,
		archive:      archive,
		allowedUsers: allowedUsers,
		apiURL:       fmt.Sprintf(telegramAPIBase, botToken),
		client:       &http.Client{Timeout: 30 * time.Second},
		replyTimeout: defaultReplyTimeout,
		sessions:     make(map[int64]*research.Session),
		queues:       make(map[int64][]string),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook/telegram", t.handleWebhook)
}

type telegramUpdate struct {
	Message *telegramMessage `json:"message"`
}

type telegramMessage struct {
	From *telegramUser `json:"from"`
	Chat telegramChat  `json:"chat"`
	Text string        `json:"text"`
}

type telegramUser struct {
	ID int64 `json:"id"`
}

type telegramChat struct {
	ID int64 `json:"id"`
}

type telegramSendRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func (t *Telegram) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update telegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		slog.Error("telegram: failed to decode update", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if update.Message == nil || update.Message.Text == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	chatID := update.Message.Chat.ID
	if !t.allowed(update.Message.From) {
		slog.Warn("telegram: ignoring message from unlisted user", "chat_id", chatID)
		w.WriteHeader(http.StatusOK)
		return
	}

	slog.Info("telegram: received message", "chat_id", chatID, "text", update.Message.Text)
	t.enqueue(chatID, update.Message.Text)
	w.WriteHeader(http.StatusOK)
}

// enqueue queues text for the chat and starts its worker if idle.
func (t *Telegram) enqueue(chatID int64, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, running := t.queues[chatID]
	t.queues[chatID] = append(t.queues[chatID], text)
	if running {
		return
	}
	t.wg.Add(1)
	go t.drain(chatID)
}

func (t *Telegram) drain(chatID int64) {
	defer t.wg.Done()
	for {
		t.mu.Lock()
		pending := t.queues[chatID]
		if len(pending) == 0 {
			delete(t.queues, chatID)
			t.mu.Unlock()
			return
		}
		text := pending[0]
		t.queues[chatID] = pending[1:]
		t.mu.Unlock()

		t.handle(chatID, text)
	}
}

func (t *Telegram) handle(chatID int64, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), t.replyTimeout)
	defer cancel()

	t.sendTyping(ctx, chatID)

	reply := t.session(chatID).Submit(ctx, text, nil)
	if reply.Status == research.StatusEnded {
		t.endSession(chatID)
	}

	if out := FormatReply(reply); out != "" {
		if err := t.sendMessage(ctx, chatID, out); err != nil {
			slog.Error("telegram: failed to send message", "chat_id", chatID, "error", err)
		}
	}
}

// Wait blocks until every queued message has been handled.
func (t *Telegram) Wait() {
	t.wg.Wait()
}

func (t *Telegram) allowed(from *telegramUser) bool {
	if len(t.allowedUsers) == 0 {
		return true
	}
	return from != nil && slices.Contains(t.allowedUsers, from.ID)
}

func (t *Telegram) session(chatID int64) *research.Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[chatID]; ok {
		return s
	}
	opts := []research.Option{
		research.WithRepeatDetection(),
		research.WithID(fmt.Sprintf("telegram:%d:%s", chatID, uuid.NewString())),
	}
	if t.archive != nil {
		opts = append(opts, research.WithArchive(t.archive))
	}
	s := research.NewSession(t.researcher, opts...)
	t.sessions[chatID] = s
	return s
}

// endSession drops the chat's session; the next message starts a new one.
func (t *Telegram) endSession(chatID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, chatID)
}

func (t *Telegram) sendTyping(ctx context.Context, chatID int64) {
	body, _ := json.Marshal(map[string]any{
		"chat_id": chatID,
		"action":  telegramActionTyping,
	})
	resp, err := t.post(ctx, telegramChatAction, body)
	if err != nil {
		slog.Warn("telegram: failed to send typing action", "chat_id", chatID, "error", err)
		return
	}
	resp.Body.Close()
}

func (t *Telegram) sendMessage(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range splitMessage(text, telegramMaxMessage) {
		body, err := json.Marshal(telegramSendRequest{
			ChatID: chatID,
			Text:   chunk,
		})
		if err != nil {
			return err
		}

		resp, err := t.post(ctx, telegramSendMsg, body)
		if err != nil {
			return err
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("telegram API returned %d", resp.StatusCode)
		}
	}
	return nil
}

func (t *Telegram) post(ctx context.Context, method string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL+method, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return t.client.Do(req)
}

// splitMessage cuts text into chunks of at most limit runes.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(runes) > 0 {
		n := min(limit, len(runes))
		chunks = append(chunks, string(runes[:n]))
		runes = runes[n:]
	}
	return chunks
}
