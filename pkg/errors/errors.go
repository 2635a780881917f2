package errors

import (
	"errors"
	"fmt"
	"net"
)

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 调度 / 发送相关错误。
var (
	CampaignNotFound     = Definition{Code: "CAMPAIGN_NOT_FOUND", Message: "Campaign not found"}
	CampaignInactive     = Definition{Code: "CAMPAIGN_INACTIVE", Message: "Campaign inactive"}
	CampaignWindowClosed = Definition{Code: "CAMPAIGN_WINDOW_CLOSED", Message: "Campaign send window closed"}
	WindowMalformed      = Definition{Code: "WINDOW_MALFORMED", Message: "Campaign time window malformed"}
	NumberIncapable      = Definition{Code: "NUMBER_INCAPABLE", Message: "Destination cannot receive chat messages"}
	PhoneTooShort        = Definition{Code: "PHONE_TOO_SHORT", Message: "Phone number has fewer than 10 digits"}
)

// 会话相关错误。
var (
	ConversationNotFound  = Definition{Code: "CONVERSATION_NOT_FOUND", Message: "No active conversation for destination"}
	InvalidTransition     = Definition{Code: "INVALID_TRANSITION", Message: "Status transition not allowed"}
	InvalidReply          = Definition{Code: "INVALID_REPLY", Message: "Reply failed validation"}
	WebhookTokenInvalid   = Definition{Code: "WEBHOOK_TOKEN_INVALID", Message: "Webhook token invalid"}
	WebhookPayloadInvalid = Definition{Code: "WEBHOOK_PAYLOAD_INVALID", Message: "Webhook payload invalid"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	CampaignNotFound.Code:      CampaignNotFound,
	CampaignInactive.Code:      CampaignInactive,
	CampaignWindowClosed.Code:  CampaignWindowClosed,
	WindowMalformed.Code:       WindowMalformed,
	NumberIncapable.Code:       NumberIncapable,
	PhoneTooShort.Code:         PhoneTooShort,
	ConversationNotFound.Code:  ConversationNotFound,
	InvalidTransition.Code:     InvalidTransition,
	InvalidReply.Code:          InvalidReply,
	WebhookTokenInvalid.Code:   WebhookTokenInvalid,
	WebhookPayloadInvalid.Code: WebhookPayloadInvalid,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// TransientError 标记可在下一轮调度重试的错误（网络、超时、网关 5xx）。
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient 包装一个错误为可重试错误。
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient 判断错误是否可重试。网络超时也算。
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// DuplicateError 表示存储层唯一约束命中。对所有创建点而言这就是成功。
type DuplicateError struct {
	Resource   string
	ExistingID int64
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s already exists (id=%d)", e.Resource, e.ExistingID)
}

// IsDuplicate 判断错误是否为唯一约束冲突。
func IsDuplicate(err error) bool {
	var de *DuplicateError
	return errors.As(err, &de)
}

// NotFoundError 后端返回 404。按 id 查询的调用方把它翻译成
// "记录不存在"，走跳过记录的分支而不是报错。
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// IsNotFound 判断错误是否为记录不存在。
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// SkipMessageError 消费者遇到重复投递时返回，ack 但不重试。
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return "skip message: " + e.Reason
}

// IsSkip 判断错误是否为跳过消息。
func IsSkip(err error) bool {
	var se *SkipMessageError
	return errors.As(err, &se)
}
