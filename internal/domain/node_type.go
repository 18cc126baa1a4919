package domain

// NodeType — тип узла, ключ в реестре исполнителей.
type NodeType string

const (
	// Триггеры.
	NodeTypeWebhookTrigger  NodeType = "webhookTrigger"
	NodeTypeScheduleTrigger NodeType = "scheduleTrigger"

	// Действия.
	NodeTypeHTTPRequest   NodeType = "httpRequest"
	NodeTypeAITask        NodeType = "aiTask"
	NodeTypeGenerateImage NodeType = "generateImage"
	NodeTypeParseJSON     NodeType = "parseJson"
	NodeTypeSendEmail     NodeType = "sendEmail"
	NodeTypeDBQuery       NodeType = "dbQuery"
	NodeTypeLogMessage    NodeType = "logMessage"

	// Логика.
	NodeTypeConditionalLogic NodeType = "conditionalLogic"

	// Утилиты.
	NodeTypeToUpperCase        NodeType = "toUpperCase"
	NodeTypeToLowerCase        NodeType = "toLowerCase"
	NodeTypeConcatenateStrings NodeType = "concatenateStrings"
	NodeTypeStringSplit        NodeType = "stringSplit"
	NodeTypeFormatDate         NodeType = "formatDate"
	NodeTypeDelay              NodeType = "delay"

	// Интеграции.
	NodeTypeOpenAIChatCompletion NodeType = "openAiChatCompletion"
	NodeTypeSlackPostMessage     NodeType = "slackPostMessage"
	NodeTypeGitHubCreateIssue    NodeType = "githubCreateIssue"
)

// nodeTypeAliases — устаревшие имена типов из сохранённых документов.
var nodeTypeAliases = map[NodeType]NodeType{
	"databaseQuery": NodeTypeDBQuery,
}

// Canonical возвращает каноническое имя типа (с учётом алиасов).
func (t NodeType) Canonical() NodeType {
	if c, ok := nodeTypeAliases[t]; ok {
		return c
	}
	return t
}

// IsTrigger возвращает true для пассивных узлов-триггеров.
func (t NodeType) IsTrigger() bool {
	switch t.Canonical() {
	case NodeTypeWebhookTrigger, NodeTypeScheduleTrigger:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление NodeType.
func (t NodeType) String() string {
	return string(t)
}
