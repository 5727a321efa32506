package system

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetReqLoggerFallbackWhenContextNil(t *testing.T) {
	fallback := zap.NewNop().Sugar()
	require.Same(t, fallback, GetReqLogger(nil, fallback))
}

func TestGetReqLoggerFromContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
	fallback := zap.NewNop().Sugar()
	stored := zap.NewNop().Sugar()
	ctx.Set(ReqLoggerKey, stored)
	require.Same(t, stored, GetReqLogger(ctx, fallback))
}

func TestGetReqLoggerIgnoresInvalidTypes(t *testing.T) {
	ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
	fallback := zap.NewNop().Sugar()
	ctx.Set(ReqLoggerKey, "not-a-logger")
	require.Same(t, fallback, GetReqLogger(ctx, fallback))
}

func TestEnrichReqLoggerWithClientAddsFields(t *testing.T) {
	ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest("POST", "/send-email", nil)
	req.RemoteAddr = "10.1.2.3:4444"
	req.Header.Set("User-Agent", "curl/8.0")
	ctx.Request = req

	core, recorded := observer.New(zap.DebugLevel)
	EnrichReqLoggerWithClient(ctx, zap.New(core).Sugar()).Infow("final-log")

	entries := recorded.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "10.1.2.3", fields["clientIP"])
	require.Equal(t, "curl/8.0", fields["userAgent"])
}

func TestEnrichReqLoggerWithClientHandlesNil(t *testing.T) {
	sugar := zap.NewNop().Sugar()
	require.Same(t, sugar, EnrichReqLoggerWithClient(nil, sugar))
	require.Same(t, sugar, EnrichReqLoggerWithClient(&gin.Context{}, sugar))
	require.Nil(t, EnrichReqLoggerWithClient(&gin.Context{}, nil))
}

func TestMailFields(t *testing.T) {
	require.Equal(t, []interface{}{"recipientDomain", "example.com", "style", "registration"}, MailFields("example.com", "registration"))
	require.Equal(t, []interface{}{"recipientDomain", "example.com"}, MailFields("example.com", ""))
}

func TestSetupLogger(t *testing.T) {
	for _, debug := range []bool{true, false} {
		l, err := SetupLogger(debug)
		require.NoError(t, err)
		require.NotNil(t, l)
		require.Equal(t, debug, l.Core().Enabled(zap.DebugLevel))
	}
}
