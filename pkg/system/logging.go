// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package system

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// ReqLoggerKey is the context key used to store request-scoped logger in gin context.
	ReqLoggerKey = "reqLogger"
	// RequestIDKey holds the request ID assigned by the api middleware.
	RequestIDKey = "requestID"
)

// SetupLogger builds the process logger. Debug mode uses the human-readable
// development encoder, otherwise JSON production output.
func SetupLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// GetReqLogger returns the request-scoped sugared logger from gin.Context if present,
// otherwise returns the fallback.
func GetReqLogger(c *gin.Context, fallback *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return fallback
	}
	if v, ok := c.Get(ReqLoggerKey); ok {
		if l, ok2 := v.(*zap.SugaredLogger); ok2 {
			return l
		}
	}
	return fallback
}

// EnrichReqLoggerWithClient annotates the request-scoped logger with the
// client address and user agent.
func EnrichReqLoggerWithClient(c *gin.Context, reqLogger *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil || reqLogger == nil || c.Request == nil {
		return reqLogger
	}
	reqLogger = reqLogger.With("clientIP", c.ClientIP())
	if ua := c.Request.UserAgent(); ua != "" {
		reqLogger = reqLogger.With("userAgent", ua)
	}
	return reqLogger
}

// MailFields returns key/value pairs describing an outgoing message for
// SugaredLogger.With or Infow calls. The style is omitted when empty.
func MailFields(recipientDomain, style string) []interface{} {
	if style == "" {
		return []interface{}{"recipientDomain", recipientDomain}
	}
	return []interface{}{"recipientDomain", recipientDomain, "style", style}
}
