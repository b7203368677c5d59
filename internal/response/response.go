package response

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Response is the standardized API response envelope.
type Response struct {
	Data       interface{} `json:"data"`
	Error      *ErrorBody  `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Metadata   Metadata    `json:"metadata"`
}

// ErrorBody represents a structured error response.
type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Pagination holds pagination information.
type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// NewPagination derives the page count from the total item count.
func NewPagination(page, perPage int, total int64) *Pagination {
	pages := 0
	if perPage > 0 {
		pages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return &Pagination{Page: page, PerPage: perPage, TotalItems: total, TotalPages: pages}
}

// Metadata includes request tracing and timing.
type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// Success sends a successful JSON response with the given status code and data.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, envelope(c, data, nil))
}

// SuccessWithPagination sends a successful response with pagination metadata.
func SuccessWithPagination(c *gin.Context, statusCode int, data interface{}, pagination *Pagination) {
	r := envelope(c, data, nil)
	r.Pagination = pagination
	c.JSON(statusCode, r)
}

// Fail sends an error response with an error code and no field-level details.
func Fail(c *gin.Context, statusCode int, code ErrCode) {
	c.JSON(statusCode, envelope(c, nil, &ErrorBody{Code: code, Message: GetMessage(code)}))
}

// FailWithData sends an error response that still carries a data payload,
// e.g. the session state after a rejected submission.
func FailWithData(c *gin.Context, statusCode int, code ErrCode, data interface{}) {
	c.JSON(statusCode, envelope(c, data, &ErrorBody{Code: code, Message: GetMessage(code)}))
}

// FailWithFields sends an error response with field-level validation details.
func FailWithFields(c *gin.Context, statusCode int, code ErrCode, fields map[string]string) {
	c.JSON(statusCode, envelope(c, nil, &ErrorBody{Code: code, Message: GetMessage(code), Fields: fields}))
}

// AbortFail aborts the middleware chain and sends an error response.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	c.AbortWithStatusJSON(statusCode, envelope(c, nil, &ErrorBody{Code: code, Message: GetMessage(code)}))
}

func envelope(c *gin.Context, data interface{}, errBody *ErrorBody) Response {
	return Response{
		Data:     data,
		Error:    errBody,
		Metadata: buildMetadata(c),
	}
}

func buildMetadata(c *gin.Context) Metadata {
	id := c.GetString(ContextKeyRequestID)
	if id == "" {
		id = uuid.New().String() // Fallback if middleware not applied
	}
	return Metadata{
		RequestID: id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
