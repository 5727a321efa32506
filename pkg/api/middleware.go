// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telekom/nekomail/pkg/system"
)

// RequestIDHeader carries the request ID to and from clients.
const RequestIDHeader = "X-Request-ID"

// requestLogger assigns a request ID (reusing a well-formed incoming one)
// and stores a request-scoped logger under system.ReqLoggerKey.
func requestLogger(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(system.RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		reqLog := system.EnrichReqLoggerWithClient(c, log.With("requestID", id))
		c.Set(system.ReqLoggerKey, reqLog)
		c.Next()
	}
}

// limitBody caps the request body; reads past the limit fail with
// *http.MaxBytesError.
func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

// securityHeaders sets the usual hardening headers for a JSON API.
func securityHeaders(debug bool) gin.HandlerFunc {
	return secure.New(secure.Config{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
		STSSeconds:            15552000,
		STSIncludeSubdomains:  true,
		IsDevelopment:         debug,
		IENoOpen:              true,
	})
}
