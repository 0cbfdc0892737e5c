package handler

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/medichat/records-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// Error writes err with the status and symbolic code its kind maps to.
func Error(c *gin.Context, err error) {
	c.JSON(apperrors.HTTPStatus(err), &Response{
		Status:  "error",
		Code:    string(apperrors.KindOf(err)),
		Message: err.Error(),
	})
}
