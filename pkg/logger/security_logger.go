package logger

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"sitemap-watch/pkg/utils"
)

var (
	urlInMessage    = regexp.MustCompile(`https?://[^\s]+`)
	secretInMessage = regexp.MustCompile(`(?i)(key|token|secret|bearer)[=:\s]\s*[a-zA-Z0-9_\-\.]+`)
)

// SecurityLogger masks webhook endpoints, API tokens and full URLs before
// they reach the log stream. Webhook URLs carry their secret in the path, so
// only the host survives masking.
type SecurityLogger struct {
	*Logger
}

func NewSecurityLogger(base *Logger) *SecurityLogger {
	if base == nil {
		base = GetLogger()
	}
	return &SecurityLogger{Logger: base}
}

// MaskURL keeps the host and replaces the rest with a short hash.
func (sl *SecurityLogger) MaskURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	hash := utils.CalculateURLHashShort(rawURL)
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "url#" + hash
	}
	return fmt.Sprintf("%s#%s", parsed.Host, hash)
}

// MaskWebhookURL masks a notification endpoint.
func (sl *SecurityLogger) MaskWebhookURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "webhook#" + utils.CalculateURLHashShort(rawURL)
	}
	return fmt.Sprintf("%s/webhook#%s", parsed.Host, utils.CalculateURLHashShort(rawURL))
}

// MaskToken reveals at most the last four characters of a credential.
func (sl *SecurityLogger) MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "***"
	}
	return "***" + token[len(token)-4:]
}

// MaskSensitiveData returns a copy of fields with credential-like and
// webhook-like values masked.
func (sl *SecurityLogger) MaskSensitiveData(fields map[string]interface{}) map[string]interface{} {
	masked := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		lowerKey := strings.ToLower(key)
		str, isString := value.(string)

		switch {
		case !isString:
			masked[key] = value
		case strings.Contains(lowerKey, "token"), strings.Contains(lowerKey, "secret"),
			strings.Contains(lowerKey, "api_key"):
			masked[key] = sl.MaskToken(str)
		case strings.Contains(lowerKey, "webhook"):
			masked[key] = sl.MaskWebhookURL(str)
		default:
			masked[key] = value
		}
	}
	return masked
}

// MaskLogMessage hides URLs and inline credentials in free text.
func (sl *SecurityLogger) MaskLogMessage(message string) string {
	masked := urlInMessage.ReplaceAllStringFunc(message, sl.MaskURL)
	return secretInMessage.ReplaceAllString(masked, "${1}=***")
}

func (sl *SecurityLogger) SafeInfo(msg string, fields map[string]interface{}) {
	sl.Logger.WithFields(sl.MaskSensitiveData(fields)).Info(sl.MaskLogMessage(msg))
}

func (sl *SecurityLogger) SafeWarn(msg string, fields map[string]interface{}) {
	sl.Logger.WithFields(sl.MaskSensitiveData(fields)).Warn(sl.MaskLogMessage(msg))
}

func (sl *SecurityLogger) SafeError(msg string, err error, fields map[string]interface{}) {
	l := sl.Logger.WithFields(sl.MaskSensitiveData(fields))
	if err != nil {
		l = l.WithField("error", sl.MaskLogMessage(err.Error()))
	}
	l.Error(sl.MaskLogMessage(msg))
}

var (
	securityLoggerInstance *SecurityLogger
	securityLoggerOnce     sync.Once
)

// GetSecurityLogger returns a masking logger bound to the global logger.
func GetSecurityLogger() *SecurityLogger {
	securityLoggerOnce.Do(func() {
		securityLoggerInstance = NewSecurityLogger(GetLogger())
	})
	return securityLoggerInstance
}
