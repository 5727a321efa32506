// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/telekom/nekomail/pkg/apiresponses"
	"github.com/telekom/nekomail/pkg/config"
	"github.com/telekom/nekomail/pkg/dedup"
	"github.com/telekom/nekomail/pkg/dispatch"
	"github.com/telekom/nekomail/pkg/mail"
	"github.com/telekom/nekomail/pkg/metrics"
	"github.com/telekom/nekomail/pkg/policy"
	"github.com/telekom/nekomail/pkg/ratelimit"
	"github.com/telekom/nekomail/pkg/request"
	"github.com/telekom/nekomail/pkg/system"
)

const (
	SendPath = "/send-email"

	// MaxBodyBytes caps the JSON body of a send request.
	MaxBodyBytes = 10 << 10

	SentMessage      = "Meow~ Email sent successfully!"
	BlockedMessage   = "This email domain is not allowed"
	DuplicateMessage = "A similar email has just been sent. Please wait a moment."
)

// SendDependencies are the stateful pieces of the send pipeline. Nil
// limiter, slowdown, cache and blocklist are replaced with defaults driven
// by Clock (wall clock when nil); Dispatcher is required.
type SendDependencies struct {
	Limiter    *ratelimit.WindowLimiter
	Slowdown   *ratelimit.Slowdown
	Dedup      *dedup.Cache
	Blocklist  *policy.DomainBlocklist
	Dispatcher *dispatch.Dispatcher

	Clock clock.WithTicker
}

// SendController serves POST /send-email.
type SendController struct {
	log    *zap.SugaredLogger
	sender config.Mail
	deps   SendDependencies
}

func NewSendController(log *zap.SugaredLogger, cfg config.Config, deps SendDependencies) *SendController {
	log = log.Named("send")
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	if deps.Limiter == nil {
		wc := ratelimit.DefaultWindowConfig()
		wc.Clock = deps.Clock
		deps.Limiter = ratelimit.NewWindowLimiter(wc)
	}
	if deps.Slowdown == nil {
		sc := ratelimit.DefaultSlowdownConfig()
		sc.Logger = log
		sc.Clock = deps.Clock
		deps.Slowdown = ratelimit.NewSlowdown(sc)
	}
	if deps.Dedup == nil {
		// stopped by Close
		deps.Dedup = dedup.New(dedup.WithLogger(log), dedup.WithClock(deps.Clock))
		deps.Dedup.Start(context.Background())
	}
	if deps.Blocklist == nil {
		deps.Blocklist = policy.NewDomainBlocklist(cfg.Policy.BlockedDomains...)
	}
	return &SendController{log: log, sender: cfg.Mail, deps: deps}
}

func (sc *SendController) BasePath() string {
	return SendPath
}

// Handlers run in order: hard limiter, slowdown, body cap.
func (sc *SendController) Handlers() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		sc.deps.Limiter.Middleware(),
		sc.deps.Slowdown.Middleware(),
		limitBody(MaxBodyBytes),
	}
}

func (sc *SendController) Register(rg *gin.RouterGroup) error {
	rg.POST("", sc.handleSend)
	return nil
}

// Close stops the janitor and reaper goroutines.
func (sc *SendController) Close() {
	sc.deps.Limiter.Stop()
	sc.deps.Slowdown.Stop()
	sc.deps.Dedup.Stop()
}

func (sc *SendController) handleSend(c *gin.Context) {
	log := system.GetReqLogger(c, sc.log)

	var raw request.Raw
	if err := c.ShouldBindJSON(&raw); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.SendRequests.WithLabelValues("too_large").Inc()
			apiresponses.RespondRequestTooLarge(c)
			return
		}
		log.Debugw("Rejecting undecodable body", "error", err)
		metrics.SendRequests.WithLabelValues("invalid").Inc()
		apiresponses.RespondInvalidJSON(c)
		return
	}

	req, err := request.Validate(raw)
	if err != nil {
		var verr *request.ValidationError
		if errors.As(err, &verr) {
			metrics.SendRequests.WithLabelValues("invalid").Inc()
			apiresponses.RespondValidationErrors(c, verr.Errors)
			return
		}
		apiresponses.RespondInternalError(c, "validate request", err, log)
		return
	}
	log = log.With(system.MailFields(req.Domain(), req.Template)...)

	if err := sc.deps.Dedup.CheckAndMark(req.Fingerprint()); err != nil {
		log.Infow("Rejecting duplicate request")
		metrics.SendRequests.WithLabelValues("duplicate").Inc()
		apiresponses.RespondTooManyRequests(c, DuplicateMessage)
		return
	}

	if err := sc.deps.Blocklist.Check(req.To); err != nil {
		var blocked *policy.BlockedDomainError
		if errors.As(err, &blocked) {
			log.Infow("Rejecting blocked recipient domain")
			metrics.SendRequests.WithLabelValues("blocked").Inc()
			apiresponses.RespondBadRequest(c, BlockedMessage)
			return
		}
		apiresponses.RespondInternalError(c, "check recipient domain", err, log)
		return
	}

	if !mail.HasStyle(req.Template) {
		log.Debugw("Unknown template, using default", "requested", req.Template)
	}
	body, err := mail.Render(req.Template, req.Subject, req.Message, req.To)
	if err != nil {
		metrics.SendRequests.WithLabelValues(dispatch.OtherFailure.String()).Inc()
		apiresponses.RespondInternalError(c, "render email", err, log)
		return
	}

	msg := mail.NewMessage(sc.sender.SenderAddress, sc.sender.SenderName, req.To, req.Subject, body)
	outcome, err := sc.deps.Dispatcher.Dispatch(dispatch.ContextWithLogger(c.Request.Context(), log), msg)
	metrics.SendRequests.WithLabelValues(outcome.String()).Inc()

	switch outcome {
	case dispatch.Sent:
		log.Infow("Email sent")
		apiresponses.RespondMessage(c, http.StatusOK, SentMessage)
	case dispatch.TimedOut:
		log.Warnw("Email delivery exceeded deadline", "timeout", sc.deps.Dispatcher.Timeout().String())
		apiresponses.RespondGatewayTimeout(c)
	case dispatch.ConnectionUnavailable:
		log.Errorw("Mail relay unavailable", "error", err)
		apiresponses.RespondServiceUnavailable(c)
	default:
		apiresponses.RespondInternalError(c, "send email", err, log)
	}
}
