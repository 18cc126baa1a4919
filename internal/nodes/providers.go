package nodes

import "context"

// ChatRequest — запрос к модели для aiTask.
type ChatRequest struct {
	Model        string
	SystemPrompt string
	Prompt       string
	Temperature  *float32
	MaxTokens    *int
}

// ChatModel — провайдер текстовой генерации.
type ChatModel interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// ImageRequest — запрос генерации изображения.
type ImageRequest struct {
	Prompt string
	Model  string
	Size   string
}

// ImageGenerator — провайдер генерации изображений.
// Возвращает URL или base64 изображения.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (string, error)
}

// ChatMessage — сообщение для chat completions.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest — запрос openAiChatCompletion.
type CompletionRequest struct {
	APIKey   string
	Model    string
	Messages []ChatMessage
}

// ChatCompleter — клиент chat completions с ключом пользователя.
// Возвращает ответ провайдера в виде JSON-объекта.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req CompletionRequest) (map[string]any, error)
}

// SMTPConfig — параметры SMTP сервера из конфигурации узла.
type SMTPConfig struct {
	Host   string
	Port   int
	Secure bool
	User   string
	Pass   string
}

// Email — письмо.
type Email struct {
	From     string
	To       []string
	Subject  string
	Body     string
	HTMLBody string
}

// SendResult — результат отправки письма.
type SendResult struct {
	MessageID string   `json:"messageId"`
	Accepted  []string `json:"accepted"`
}

// Mailer — SMTP транспорт.
type Mailer interface {
	Send(ctx context.Context, smtp SMTPConfig, msg Email) (*SendResult, error)
}

// Conn — соединение, взятое из пула. Release обязателен.
type Conn interface {
	// Query выполняет параметризованный запрос и возвращает строки и количество
	// затронутых строк.
	Query(ctx context.Context, sql string, args ...any) (rows []map[string]any, rowCount int64, err error)

	// Release возвращает соединение в пул.
	Release()
}

// ConnPool — пул соединений.
type ConnPool interface {
	Acquire(ctx context.Context) (Conn, error)
}

// DBPools — набор пулов по строке подключения.
// Пустая строка — пул по умолчанию.
type DBPools interface {
	Pool(ctx context.Context, connString string) (ConnPool, error)
}
