package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一错误响应结构体
type Response struct {
	Code int    `json:"code"` // 业务码
	Msg  string `json:"msg"`  // 提示信息
}

// FieldErrors maps a request field to its validation messages. The
// special key NonFieldErrors holds messages that concern the payload as a
// whole.
type FieldErrors map[string][]string

const NonFieldErrors = "non_field_errors"

// Add appends msg to the messages of field.
func (f FieldErrors) Add(field, msg string) {
	f[field] = append(f[field], msg)
}

// Success writes data as the JSON body with the given status.
func Success(ctx *gin.Context, status int, data any) {
	ctx.JSON(status, data)
}

// OK is Success with 200.
func OK(ctx *gin.Context, data any) {
	Success(ctx, http.StatusOK, data)
}

// Error 失败响应
func Error(ctx *gin.Context, httpStatus int, msg string) {
	ctx.AbortWithStatusJSON(httpStatus, Response{
		Code: httpStatus, // 这里简单将 HTTP 状态码作为业务码
		Msg:  msg,
	})
}

// Invalid writes a field-keyed error map with 400.
func Invalid(ctx *gin.Context, fields FieldErrors) {
	ctx.AbortWithStatusJSON(http.StatusBadRequest, fields)
}
