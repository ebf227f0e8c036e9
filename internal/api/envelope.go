package api

// Envelope 所有 /api/users 回應的統一格式
// swagger:model api.Envelope
type Envelope struct {
	Success bool   `json:"success" example:"true"`
	Data    any    `json:"data,omitempty" swaggertype:"object"`
	Message string `json:"message" example:"user fetched"`
}

// OK 成功回應
func OK(data any, message string) Envelope {
	return Envelope{Success: true, Data: data, Message: message}
}

// Fail 失敗回應；不帶 data
func Fail(message string) Envelope {
	return Envelope{Success: false, Message: message}
}

// ErrorResponse 非 users 路由 (例如健康檢查) 的錯誤格式
// swagger:model api.ErrorResponse
type ErrorResponse struct {
	Message string `json:"message"`
}
