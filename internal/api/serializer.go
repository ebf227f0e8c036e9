package api

import (
	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
)

// JSONSerializer 以 goccy/go-json 取代 echo 預設的 encoding/json
type JSONSerializer struct{}

func (JSONSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (JSONSerializer) Deserialize(c echo.Context, i interface{}) error {
	return json.NewDecoder(c.Request().Body).Decode(i)
}
