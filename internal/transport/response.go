package transport

import "github.com/gofiber/fiber/v2"

const (
	CodeSuccess = 0
	msgSuccess  = "success"
)

// BaseResponse is the envelope of every control surface reply. Code is 0 on
// success and the HTTP status otherwise.
type BaseResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func Success(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusOK).JSON(BaseResponse{
		Code: CodeSuccess,
		Msg:  msgSuccess,
		Data: data,
	})
}
