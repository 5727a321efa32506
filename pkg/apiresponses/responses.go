/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package apiresponses

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/telekom/nekomail/pkg/request"
)

const (
	// InvalidJSONMessage is returned when the request body cannot be decoded.
	InvalidJSONMessage = "Invalid JSON body"
	// FailedMessage is the generic text for a failed delivery.
	FailedMessage = "Failed to send email :("
	// UnavailableMessage is returned when the SMTP relay cannot be reached.
	UnavailableMessage = "Email service is currently unavailable"
	// TimeoutMessage is returned when delivery exceeded its deadline.
	TimeoutMessage = "Meow~ Email took too long to send :<"
	// TooLargeMessage is returned when the request body exceeds the size cap.
	TooLargeMessage = "Request body too large"
)

// MessageResponse is the body of every non-validation response.
type MessageResponse struct {
	Message string `json:"message"`
}

// ValidationResponse lists per-field validation failures.
type ValidationResponse struct {
	Errors []request.FieldError `json:"errors"`
}

// RespondMessage writes {"message": msg} with the given status.
func RespondMessage(c *gin.Context, status int, msg string) {
	c.JSON(status, MessageResponse{Message: msg})
}

// RespondOK sends a 200 OK response with the given data.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// RespondBadRequest sends a 400 Bad Request response.
func RespondBadRequest(c *gin.Context, message string) {
	RespondMessage(c, http.StatusBadRequest, message)
}

// RespondValidationErrors sends a 400 with the list of field errors.
func RespondValidationErrors(c *gin.Context, errs []request.FieldError) {
	if errs == nil {
		errs = []request.FieldError{}
	}
	c.JSON(http.StatusBadRequest, ValidationResponse{Errors: errs})
}

// RespondInvalidJSON sends a 400 in the validation shape for undecodable bodies.
func RespondInvalidJSON(c *gin.Context) {
	RespondValidationErrors(c, []request.FieldError{{Msg: InvalidJSONMessage, Location: "body"}})
}

// RespondTooManyRequests sends a 429 Too Many Requests response.
func RespondTooManyRequests(c *gin.Context, message string) {
	RespondMessage(c, http.StatusTooManyRequests, message)
}

// RespondRequestTooLarge sends a 413 Request Entity Too Large response.
func RespondRequestTooLarge(c *gin.Context) {
	RespondMessage(c, http.StatusRequestEntityTooLarge, TooLargeMessage)
}

// RespondInternalError sends a 500 Internal Server Error response.
// The cause is logged; the client only gets the generic failure text.
func RespondInternalError(c *gin.Context, operation string, err error, log *zap.SugaredLogger) {
	if log != nil {
		log.Errorw(fmt.Sprintf("Failed to %s", operation), "error", err)
	}
	RespondMessage(c, http.StatusInternalServerError, FailedMessage)
}

// RespondServiceUnavailable sends a 503 Service Unavailable response.
func RespondServiceUnavailable(c *gin.Context) {
	RespondMessage(c, http.StatusServiceUnavailable, UnavailableMessage)
}

// RespondGatewayTimeout sends a 504 Gateway Timeout response.
func RespondGatewayTimeout(c *gin.Context) {
	RespondMessage(c, http.StatusGatewayTimeout, TimeoutMessage)
}
